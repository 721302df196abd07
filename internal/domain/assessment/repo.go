package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no assessment matches the given id.
var ErrNotFound = errors.New("assessment not found")

// ListFilter narrows List results.
type ListFilter struct {
	RiskLevel string
	From      *time.Time
	To        *time.Time
}

// Repository defines persistence for stored assessments.
type Repository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*Assessment, error)
	Update(ctx context.Context, a *Assessment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Assessment, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error)
}
