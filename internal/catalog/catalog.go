// Package catalog reads the product projection used to price and snapshot
// checkout items. The projection is maintained by the catalog system; this
// core only reads it, and treats it as the authoritative price source so a
// client can never dictate what it pays.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const productKeyPrefix = "catalog:product:"

// ErrProductNotFound marks a SKU absent from the projection.
var ErrProductNotFound = errors.New("catalog: product not found")

// Product is the sellable unit keyed by its stock id.
type Product struct {
	ProductStockID int64           `json:"productStockId"`
	ProductID      int64           `json:"productId"`
	SellerID       int64           `json:"sellerId"`
	Price          decimal.Decimal `json:"price"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"imageUrl"`
	OptionName     string          `json:"optionName"`
	BrandName      string          `json:"brandName"`
	SellerName     string          `json:"sellerName"`
}

// Reader resolves SKUs to priced products.
type Reader interface {
	Product(ctx context.Context, productStockID int64) (*Product, error)
	// Products resolves a batch; any missing SKU fails the whole call with
	// ErrProductNotFound naming the first absent id.
	Products(ctx context.Context, productStockIDs []int64) (map[int64]*Product, error)
}

// RedisCatalog reads JSON product documents under catalog:product:{id}.
type RedisCatalog struct {
	client *redis.Client
}

func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{client: client}
}

func productKey(productStockID int64) string {
	return productKeyPrefix + strconv.FormatInt(productStockID, 10)
}

func (c *RedisCatalog) Product(ctx context.Context, productStockID int64) (*Product, error) {
	raw, err := c.client.Get(ctx, productKey(productStockID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("catalog: sku %d: %w", productStockID, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read sku %d: %w", productStockID, err)
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("catalog: decode sku %d: %w", productStockID, err)
	}
	return &p, nil
}

func (c *RedisCatalog) Products(ctx context.Context, productStockIDs []int64) (map[int64]*Product, error) {
	if len(productStockIDs) == 0 {
		return map[int64]*Product{}, nil
	}
	keys := make([]string, len(productStockIDs))
	for i, id := range productStockIDs {
		keys[i] = productKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog: batch read: %w", err)
	}
	out := make(map[int64]*Product, len(productStockIDs))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("catalog: sku %d: %w", productStockIDs[i], ErrProductNotFound)
		}
		var p Product
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, fmt.Errorf("catalog: decode sku %d: %w", productStockIDs[i], err)
		}
		out[productStockIDs[i]] = &p
	}
	return out, nil
}

// Publish writes a product document. Used by seed tooling and tests; the
// real projection is maintained by the catalog system.
func (c *RedisCatalog) Publish(ctx context.Context, p *Product) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("catalog: encode sku %d: %w", p.ProductStockID, err)
	}
	if err := c.client.Set(ctx, productKey(p.ProductStockID), raw, 0).Err(); err != nil {
		return fmt.Errorf("catalog: publish sku %d: %w", p.ProductStockID, err)
	}
	return nil
}
