package awsinventory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// Caller runs a remote call under a retry policy.
type Caller interface {
	Call(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// SupportedTypes lists the resource types this provider can list, in the
// order a full-account listing walks them.
var SupportedTypes = []string{
	"ec2:instance",
	"ec2:volume",
	"s3:bucket",
	"lambda:function",
	"rds:db",
}

const tokenSeparator = "|"

// Provider answers inventory queries from AWS APIs for the account the
// credentials belong to.
type Provider struct {
	clients *Clients
	caller  Caller
	log     logger.Logger
	listers map[string]lister

	once    sync.Once
	account string
	accErr  error
}

var _ inventory.Provider = (*Provider)(nil)

// NewProvider creates a provider. caller is normally the shared
// RateLimitedTransport.
func NewProvider(clients *Clients, caller Caller, log logger.Logger) *Provider {
	if log == nil {
		log = logger.NewNop()
	}
	p := &Provider{
		clients: clients,
		caller:  caller,
		log:     log.WithField("provider", "aws"),
	}
	p.listers = map[string]lister{
		"ec2:instance":    p.listInstances,
		"ec2:volume":      p.listVolumes,
		"s3:bucket":       p.listBuckets,
		"lambda:function": p.listFunctions,
		"rds:db":          p.listDBInstances,
	}
	return p
}

// Account returns the caller's account ID.
func (p *Provider) Account(ctx context.Context) (string, error) {
	p.once.Do(func() {
		p.accErr = p.caller.Call(ctx, "sts:GetCallerIdentity", func(ctx context.Context) error {
			var err error
			p.account, err = p.clients.CallerAccount(ctx)
			return err
		})
	})
	return p.account, p.accErr
}

// Search returns one native page. The cursor token is
// "<resourceType>|<native token>"; a full-account query moves on to the
// next supported type when one is exhausted. Time-based cursors are not
// supported and yield an empty page.
func (p *Provider) Search(ctx context.Context, req inventory.SearchRequest) (*inventory.SearchResponse, error) {
	account, err := p.Account(ctx)
	if err != nil {
		return nil, err
	}
	if req.AccountID != "" && req.AccountID != account {
		return nil, fmt.Errorf("account %s is not reachable with the current AWS credentials (caller account %s)", req.AccountID, account)
	}
	if !req.Cursor.IsZero() && req.Cursor.Token == "" {
		return &inventory.SearchResponse{}, nil
	}

	resourceType, native := req.ResourceType, ""
	if req.Cursor.Token != "" {
		resourceType, native, _ = strings.Cut(req.Cursor.Token, tokenSeparator)
	}
	if resourceType == "" {
		resourceType = SupportedTypes[0]
	}

	list, ok := p.listers[resourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported resource type %q", resourceType)
	}

	var pg page
	err = p.caller.Call(ctx, "list "+resourceType, func(ctx context.Context) error {
		var err error
		pg, err = list(ctx, account, native, req.PageSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := &inventory.SearchResponse{
		Records: pg.records,
		Paging:  inventory.Paging{Rows: len(pg.records)},
	}

	next := ""
	switch {
	case pg.next != "":
		next = resourceType + tokenSeparator + pg.next
	case req.ResourceType == "":
		if t := nextType(resourceType); t != "" {
			next = t + tokenSeparator
		}
	}
	if next != "" {
		resp.Paging.NextCursor = &types.PageCursor{Token: next}
	}

	p.log.WithFields(map[string]interface{}{
		"type": resourceType,
		"rows": len(pg.records),
		"more": next != "",
	}).Debug("aws page listed")
	return resp, nil
}

func nextType(current string) string {
	for i, t := range SupportedTypes {
		if t == current && i+1 < len(SupportedTypes) {
			return SupportedTypes[i+1]
		}
	}
	return ""
}
