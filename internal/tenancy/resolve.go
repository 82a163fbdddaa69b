// Package tenancy maps an external shop identity to an internal tenant.
package tenancy

import (
	"context"
	"fmt"
	"strings"

	"shopsync/internal/faults"
	"shopsync/internal/store"
)

// ConnectionLister is the slice of the store the resolver needs.
type ConnectionLister interface {
	ListConnectedConnections(ctx context.Context, source string) ([]store.Connection, error)
}

type Resolver struct {
	connections ConnectionLister
}

func NewResolver(connections ConnectionLister) *Resolver {
	return &Resolver{connections: connections}
}

// NormalizeShopDomain strips the protocol prefix, a leading www., and a
// trailing slash, and lowercases. Applied to both sides before comparing.
func NormalizeShopDomain(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	d = strings.TrimSuffix(d, "/")
	return strings.ToLower(d)
}

// ResolveTenant finds the tenant whose connected Shopify store matches the
// shop domain. The comparison is exact string equality after normalization,
// never substring or suffix matching: the domain is a routing key for
// revenue data and a near-miss must not resolve.
func (r *Resolver) ResolveTenant(ctx context.Context, shopDomain string) (string, error) {
	normalized := NormalizeShopDomain(shopDomain)

	conns, err := r.connections.ListConnectedConnections(ctx, store.SourceShopify)
	if err != nil {
		return "", err
	}
	if len(conns) == 0 {
		return "", fmt.Errorf("%w: no connected Shopify stores", faults.ErrTenantNotFound)
	}

	for _, conn := range conns {
		if NormalizeShopDomain(conn.StoreDomain()) == normalized {
			return conn.TenantID, nil
		}
	}
	return "", fmt.Errorf("%w: no tenant mapped to shop domain %s", faults.ErrTenantNotFound, normalized)
}
