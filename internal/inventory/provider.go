package inventory

import (
	"context"

	"github.com/yairfalse/lwcomply/pkg/types"
)

// SearchRequest is one inventory query. Empty filters match everything.
type SearchRequest struct {
	Cloud        string
	ResourceType string
	AccountID    string
	PageSize     int
	Cursor       types.PageCursor
	Window       types.DateRange
}

// Paging describes where a page sits in the full result.
type Paging struct {
	Rows       int
	TotalRows  int
	NextCursor *types.PageCursor
}

// SearchResponse is one page of inventory results.
type SearchResponse struct {
	Records []types.ResourceRecord
	Paging  Paging
}

// Provider answers inventory queries.
type Provider interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}
