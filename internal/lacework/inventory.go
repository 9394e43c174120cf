package lacework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/pkg/types"
)

const inventorySearchPath = "/api/v2/Inventory/search"

// PageSize is the fixed number of rows the inventory API returns per page.
const PageSize = 5000

var inventoryReturns = []string{
	"resourceId",
	"resourceType",
	"urn",
	"resourceRegion",
	"resourceTags",
	"startTime",
	"cloudDetails",
}

type searchBody struct {
	CSP        string       `json:"csp"`
	TimeFilter *timeFilter  `json:"timeFilter,omitempty"`
	Filters    []fieldMatch `json:"filters,omitempty"`
	Returns    []string     `json:"returns"`
}

type timeFilter struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type fieldMatch struct {
	Field      string `json:"field"`
	Expression string `json:"expression"`
	Value      string `json:"value"`
}

type inventoryPage struct {
	Paging struct {
		Rows      int `json:"rows"`
		TotalRows int `json:"totalRows"`
		URLs      struct {
			NextPage string `json:"nextPage"`
		} `json:"urls"`
	} `json:"paging"`
	Data []inventoryItem `json:"data"`
}

type inventoryItem struct {
	ResourceID     string                 `json:"resourceId"`
	ResourceType   string                 `json:"resourceType"`
	URN            string                 `json:"urn"`
	ResourceRegion string                 `json:"resourceRegion"`
	ResourceTags   map[string]interface{} `json:"resourceTags"`
	StartTime      string                 `json:"startTime"`
	CloudDetails   struct {
		AccountID string `json:"accountID"`
	} `json:"cloudDetails"`
}

// Search runs one inventory query. A cursor token is the API's nextPage
// URL. Without one, a (startTime, afterId) cursor is resumed in key order:
// first the rows sharing the boundary timestamp whose URN sorts after
// afterId, then, once those are exhausted, the rows with a later start time.
// Keyset pages report no total since the narrowed query's count does not
// describe the full result.
func (c *APIClient) Search(ctx context.Context, req inventory.SearchRequest) (*inventory.SearchResponse, error) {
	switch {
	case req.Cursor.Token != "":
		u, err := url.Parse(req.Cursor.Token)
		if err != nil {
			return nil, fmt.Errorf("invalid inventory page token: %w", err)
		}
		return c.searchPage(c.get(ctx, "inventory search", u.Path, u.Query()))
	case !req.Cursor.StartTime.IsZero():
		return c.searchAfter(ctx, req)
	default:
		return c.searchPage(c.post(ctx, "inventory search", inventorySearchPath, buildSearch(req)))
	}
}

func (c *APIClient) searchPage(body []byte, err error) (*inventory.SearchResponse, error) {
	if err != nil {
		return nil, err
	}
	return parseInventoryPage(body)
}

func (c *APIClient) searchAfter(ctx context.Context, req inventory.SearchRequest) (*inventory.SearchResponse, error) {
	var boundary *inventory.SearchResponse
	if req.Cursor.AfterID != "" {
		b := buildSearch(req)
		b.Filters = append(b.Filters,
			cursorFilter("startTime", "eq", req.Cursor),
			fieldMatch{Field: "urn", Expression: "gt", Value: req.Cursor.AfterID},
		)
		page, err := c.searchPage(c.post(ctx, "inventory search", inventorySearchPath, b))
		if err != nil {
			return nil, err
		}
		if page.Paging.NextCursor != nil || len(page.Records) >= pageSize(req) {
			page.Paging.TotalRows = 0
			return page, nil
		}
		boundary = page
	}

	expr := "gt"
	if req.Cursor.AfterID == "" {
		expr = "ge"
	}
	b := buildSearch(req)
	b.Filters = append(b.Filters, cursorFilter("startTime", expr, req.Cursor))
	later, err := c.searchPage(c.post(ctx, "inventory search", inventorySearchPath, b))
	if err != nil {
		return nil, err
	}
	later.Paging.TotalRows = 0
	if boundary != nil && len(boundary.Records) > 0 {
		later.Records = append(boundary.Records, later.Records...)
		later.Paging.Rows = len(later.Records)
	}
	return later, nil
}

func pageSize(req inventory.SearchRequest) int {
	if req.PageSize > 0 && req.PageSize < PageSize {
		return req.PageSize
	}
	return PageSize
}

func cursorFilter(field, expr string, cursor types.PageCursor) fieldMatch {
	return fieldMatch{Field: field, Expression: expr, Value: cursor.StartTime.UTC().Format(time.RFC3339Nano)}
}

// buildSearch encodes the request's scope. Cursor filters are added by
// searchAfter.
func buildSearch(req inventory.SearchRequest) searchBody {
	cloud := req.Cloud
	if cloud == "" {
		cloud = "AWS"
	}
	b := searchBody{CSP: cloud, Returns: inventoryReturns}

	if !req.Window.IsZero() {
		b.TimeFilter = &timeFilter{
			StartTime: req.Window.Start.UTC().Format(time.RFC3339),
			EndTime:   req.Window.End.AddDate(0, 0, 1).UTC().Format(time.RFC3339),
		}
	}
	if req.ResourceType != "" {
		b.Filters = append(b.Filters, fieldMatch{Field: "resourceType", Expression: "eq", Value: req.ResourceType})
	}
	if req.AccountID != "" {
		b.Filters = append(b.Filters, fieldMatch{Field: "cloudDetails.accountID", Expression: "eq", Value: req.AccountID})
	}
	return b
}

func parseInventoryPage(body []byte) (*inventory.SearchResponse, error) {
	var page inventoryPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode inventory page: %w", err)
	}

	resp := &inventory.SearchResponse{
		Records: make([]types.ResourceRecord, 0, len(page.Data)),
		Paging: inventory.Paging{
			Rows:      page.Paging.Rows,
			TotalRows: page.Paging.TotalRows,
		},
	}
	if page.Paging.URLs.NextPage != "" {
		resp.Paging.NextCursor = &types.PageCursor{Token: page.Paging.URLs.NextPage}
	}

	for _, item := range page.Data {
		if r, ok := item.record(); ok {
			resp.Records = append(resp.Records, r)
		}
	}
	return resp, nil
}

func (i inventoryItem) record() (types.ResourceRecord, bool) {
	arn := i.URN
	if arn == "" {
		arn = i.ResourceID
	}
	if arn == "" {
		return types.ResourceRecord{}, false
	}

	r := types.ResourceRecord{
		ARN:          arn,
		ResourceType: i.ResourceType,
		AccountID:    i.CloudDetails.AccountID,
		Region:       i.ResourceRegion,
	}
	parsed, err := inventory.ParseARN(arn)
	if err == nil {
		if r.AccountID == "" {
			r.AccountID = parsed.AccountID
		}
		if r.ResourceType == "" {
			r.ResourceType = parsed.ResourceType()
		}
		if r.Region == "" {
			r.Region = parsed.Region
		}
	}
	if len(i.ResourceTags) > 0 {
		r.Tags = make(map[string]string, len(i.ResourceTags))
		for k, v := range i.ResourceTags {
			if v == nil {
				r.Tags[k] = ""
				continue
			}
			r.Tags[k] = fmt.Sprint(v)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, i.StartTime); err == nil {
		r.StartTime = t.UTC()
	}
	return r, true
}
