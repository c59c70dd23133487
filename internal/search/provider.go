package search

import (
	"context"

	"github.com/osintlab/casedesk/internal/model"
)

// Provider executes one lookup against one source. Implementations must
// be safe for concurrent use; the service fans out across providers.
type Provider interface {
	// Name identifies the source in results and error reports.
	Name() string
	// Search runs the query. An error marks this provider's slice of the
	// fan-out as failed; other providers' results still count.
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}
