// Package store persists the package catalog, the ignore list and the request
// journal in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tepel-chen/demil/internal/model"
)

// ErrInvalidTransition is returned when a request status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines the persistence operations of the command service.
type Store interface {
	// ListCatalog returns the remembered mission packs in saved order. URL
	// fields are left empty.
	ListCatalog(ctx context.Context) ([]model.CatalogEntry, error)
	// ReplaceCatalog stores entries as the whole catalog.
	ReplaceCatalog(ctx context.Context, entries []model.CatalogEntry) error
	ListIgnored(ctx context.Context) ([]string, error)
	AddIgnored(ctx context.Context, steamIDs ...string) error

	CreateRequest(ctx context.Context, r *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ListRequests(ctx context.Context, limit, offset int) ([]*model.Request, int, error)
	UpdateRequestStatus(ctx context.Context, id, status, errMsg string, at time.Time) error
	GetRequestStats(ctx context.Context) (*model.RequestStats, error)
	InsertProgressLine(ctx context.Context, requestID string, seq int, line string, at time.Time) error
	GetProgressLines(ctx context.Context, requestID string) ([]model.ProgressLine, error)

	Close() error
}
