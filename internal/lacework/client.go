// Package lacework talks to the Lacework platform, either through its v2
// HTTP API or through the lacework CLI.
package lacework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/internal/transport"
)

// APIClient is the HTTP API implementation. Its transport is expected to
// be rate limited and authenticated.
type APIClient struct {
	tr  transport.Transport
	log logger.Logger
}

var _ inventory.Provider = (*APIClient)(nil)

// NewAPIClient creates an API client.
func NewAPIClient(tr transport.Transport, log logger.Logger) *APIClient {
	if log == nil {
		log = logger.NewNop()
	}
	return &APIClient{tr: tr, log: log.WithField("provider", "lacework-api")}
}

// SubaccountHeader is the header selecting a Lacework sub-account.
func SubaccountHeader() string {
	return subaccountHeader
}

func (c *APIClient) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, &transport.Request{Method: http.MethodGet, Path: path, Query: query, Operation: op})
}

func (c *APIClient) post(ctx context.Context, op, path string, in any) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	return c.do(ctx, &transport.Request{Method: http.MethodPost, Path: path, Body: body, Operation: op})
}

func (c *APIClient) do(ctx context.Context, req *transport.Request) ([]byte, error) {
	resp, err := c.tr.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(map[string]interface{}{
		"operation": req.Operation,
		"status":    resp.StatusCode,
		"bytes":     len(resp.Body),
	}).Debug("api call complete")
	return resp.Body, nil
}

// unwrapData returns the value under a top-level "data" key, or the
// document itself when there is none. The API always wraps; CLI output
// sometimes does not.
func unwrapData(body []byte) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return body
}

// firstObject returns raw when it is an object, or its first element when
// it is an array. ok is false for empty arrays.
func firstObject(raw json.RawMessage) (json.RawMessage, bool, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, false, nil
		}
		return list[0], true, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(severityName(n.String()))
	return nil
}

// severityName maps the API's numeric severities to their names.
func severityName(code string) string {
	switch code {
	case "1":
		return "Critical"
	case "2":
		return "High"
	case "3":
		return "Medium"
	case "4":
		return "Low"
	case "5":
		return "Info"
	default:
		return code
	}
}
