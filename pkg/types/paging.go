package types

import "time"

// PageCursor identifies where the next page of a paginated query starts.
// Providers that issue opaque tokens use Token; otherwise the cursor is the
// (StartTime, AfterID) pair of the last record seen, where AfterID breaks
// ties between records sharing a boundary timestamp.
type PageCursor struct {
	Token     string    `json:"token,omitempty"`
	StartTime time.Time `json:"startTime"`
	AfterID   string    `json:"afterId,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c PageCursor) IsZero() bool {
	return c.Token == "" && c.StartTime.IsZero() && c.AfterID == ""
}

// TruncationState describes whether a broad query returned every row.
type TruncationState struct {
	ResourceType  string `json:"resourceType"`
	RequestedRows int    `json:"requestedRows"`
	TotalRows     int    `json:"totalRows"`
	IsTruncated   bool   `json:"isTruncated"`
}

// NewTruncationState derives truncation from the row counts. A result is
// truncated whenever fewer rows came back than the server reports, including
// when the returned count equals the page size.
func NewTruncationState(resourceType string, returned, total int) TruncationState {
	return TruncationState{
		ResourceType:  resourceType,
		RequestedRows: returned,
		TotalRows:     total,
		IsTruncated:   returned < total,
	}
}
