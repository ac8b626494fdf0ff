package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miq-labs/miq-be/internal/shared"
)

const listFilterSQL = `
	WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR occurred_at < $2)
	  AND ($3::text IS NULL OR actor = $3)
	  AND ($4::text IS NULL OR entity = $4)
	  AND ($5::text IS NULL OR action = $5)`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a page of audit entries matching the filters, newest first,
// plus the total match count.
func (r *Repository) List(ctx context.Context, f Filters, params shared.ListParams) ([]Entry, int, error) {
	args := []any{toPgTime(f.From), toPgTime(f.To), optionalText(f.Actor), optionalText(f.Entity), optionalText(f.Action)}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+listFilterSQL, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, actor, action, entity, entity_id, meta, occurred_at
		FROM audit_logs`+listFilterSQL+`
		ORDER BY occurred_at DESC, id DESC
		OFFSET $6 LIMIT $7`, append(args, params.Offset, params.Limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.At); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListAll returns every matching entry without paging, for exports.
func (r *Repository) ListAll(ctx context.Context, f Filters) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor, action, entity, entity_id, meta, occurred_at
		FROM audit_logs`+listFilterSQL+`
		ORDER BY occurred_at DESC, id DESC`,
		toPgTime(f.From), toPgTime(f.To), optionalText(f.Actor), optionalText(f.Entity), optionalText(f.Action))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteBefore removes entries older than the cutoff and reports how many.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
