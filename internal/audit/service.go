package audit

import (
	"context"
	"time"

	"github.com/miq-labs/miq-be/internal/shared"
)

// RepositoryPort defines data access methods for audit entries.
type RepositoryPort interface {
	List(ctx context.Context, f Filters, params shared.ListParams) ([]Entry, int, error)
	ListAll(ctx context.Context, f Filters) ([]Entry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service coordinates audit log reads and retention.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns a page of audit entries.
func (s *Service) List(ctx context.Context, f Filters, params shared.ListParams) (*Result, error) {
	params = params.Normalize()
	entries, total, err := s.repo.List(ctx, f, params)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return &Result{Entries: entries, Meta: shared.NewPagination(params, total)}, nil
}

// Export returns every entry matching the filters.
func (s *Service) Export(ctx context.Context, f Filters) ([]Entry, error) {
	return s.repo.ListAll(ctx, f)
}

// Purge deletes entries older than the retention period.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, time.Now().UTC().Add(-retention))
}
