package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)
	ctx := context.Background()

	rec := SessionRecord{
		UserGUID: "11111111-1111-1111-1111-111111111111",
		Email:    "admin@miq.local",
		Roles:    []string{RoleAdmin},
		TokenID:  "tok-1",
		IssuedAt: time.Now().UTC(),
	}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.Get(ctx, rec.UserGUID, rec.TokenID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Email != rec.Email || len(got.Roles) != 1 || got.Roles[0] != RoleAdmin {
		t.Fatalf("unexpected session record: %+v", got)
	}

	if err := store.Delete(ctx, rec.UserGUID, rec.TokenID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Get(ctx, rec.UserGUID, rec.TokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)
	ctx := context.Background()

	rec := SessionRecord{UserGUID: "u-1", Email: "a@b.c", TokenID: "tok-2"}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save session: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, rec.UserGUID, rec.TokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}
