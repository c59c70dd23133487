package store

import (
	"context"
	"time"

	"github.com/osintlab/casedesk/internal/model"
)

// Store defines the persistence interface for the investigation desk.
// All referential rules (entity→case ownership, relationship endpoint
// existence and same-case membership, cascades) are enforced here so no
// caller can commit an inconsistent graph.
type Store interface {
	// Cases
	CreateCase(ctx context.Context, c *model.Case) error
	GetCase(ctx context.Context, id string) (*model.Case, error)
	ListCases(ctx context.Context, f model.CaseFilter) ([]*model.Case, error)
	UpdateCase(ctx context.Context, id string, upd model.CaseUpdate) (*model.Case, error)
	DeleteCase(ctx context.Context, id string) error

	// Entities
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	ListEntitiesByCase(ctx context.Context, caseID string) ([]*model.Entity, error)
	UpdateEntity(ctx context.Context, id string, upd model.EntityUpdate) (*model.Entity, error)
	DeleteEntity(ctx context.Context, id string) error

	// Relationships
	CreateRelationship(ctx context.Context, r *model.EntityRelationship) error
	ListRelationshipsByCase(ctx context.Context, caseID string) ([]*model.EntityRelationship, error)
	DeleteRelationship(ctx context.Context, id string) error

	// Search history
	RecordSearch(ctx context.Context, h *model.SearchHistory) error
	ListSearchHistory(ctx context.Context, f model.HistoryFilter) ([]*model.SearchHistory, error)

	// Provider configs
	CreateAPIConfig(ctx context.Context, c *model.APIConfig) error
	GetAPIConfig(ctx context.Context, id string) (*model.APIConfig, error)
	ListAPIConfigs(ctx context.Context) ([]*model.APIConfig, error)
	ListActiveConfigsByCategory(ctx context.Context, category model.SearchType) ([]*model.APIConfig, error)
	UpdateAPIConfig(ctx context.Context, id string, upd model.APIConfigUpdate) (*model.APIConfig, error)
	DeleteAPIConfig(ctx context.Context, id string) error
	// RecordUsage increments requestsToday (resetting at a UTC day
	// rollover) and stamps lastSync.
	RecordUsage(ctx context.Context, id string, now time.Time) error
	// RecordSyncResult writes the outcome of a provider call or
	// connection test. An empty errMsg clears the error log.
	RecordSyncResult(ctx context.Context, id string, errMsg string, now time.Time) error

	// Case timeline
	ListActivityByCase(ctx context.Context, caseID string) ([]*model.CaseActivity, error)

	// Idempotency keys for create operations
	LookupIdempotencyKey(ctx context.Context, key string) (kind, resourceID string, err error)
	SaveIdempotencyKey(ctx context.Context, key, kind, resourceID string) error

	// Dashboard aggregates
	Stats(ctx context.Context, now time.Time) (*model.Stats, error)
}
