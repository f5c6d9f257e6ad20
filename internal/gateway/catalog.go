package gateway

import (
	"context"

	"github.com/fieldware/fieldsync/internal/record"
)

// StoreGateway serves the rep's store list. Stores are server-owned
// reference data, so the gateway is read-only.
type StoreGateway struct {
	*base
}

// List returns the stores for a call date and user, decorated with schedule
// status. Online responses refresh the local cache; otherwise the cache
// answers.
func (g *StoreGateway) List(ctx context.Context, callDate record.Date, userID int64) ([]record.Store, error) {
	if g.oracle.Online() {
		stores, err := g.remote.ListStores(ctx, callDate, userID)
		if err == nil {
			if err := g.store.ReplaceStores(ctx, stores); err != nil {
				return nil, err
			}
			return stores, nil
		}
		if !g.fellBack("list stores", err) {
			return nil, err
		}
	}
	return g.store.ListStores(ctx)
}

// Get returns one cached store.
func (g *StoreGateway) Get(ctx context.Context, id record.ID) (*record.Store, error) {
	return g.store.GetStore(ctx, id)
}

// ProductGateway serves the product catalog. Read-only, same shape as
// StoreGateway.
type ProductGateway struct {
	*base
}

// List returns the catalog, refreshing the cache when online.
func (g *ProductGateway) List(ctx context.Context) ([]record.Product, error) {
	if g.oracle.Online() {
		products, err := g.remote.ListProducts(ctx)
		if err == nil {
			if err := g.store.ReplaceProducts(ctx, products); err != nil {
				return nil, err
			}
			return products, nil
		}
		if !g.fellBack("list products", err) {
			return nil, err
		}
	}
	return g.store.ListProducts(ctx)
}

// Get returns one cached product.
func (g *ProductGateway) Get(ctx context.Context, id record.ID) (*record.Product, error) {
	return g.store.GetProduct(ctx, id)
}
