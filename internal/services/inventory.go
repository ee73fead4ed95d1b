package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cassa/internal/core"
	"cassa/internal/storage"
)

// InventoryService manages the product catalogue.
type InventoryService struct {
	storage *storage.SQLiteRepository
	clock   core.Clock
}

func NewInventoryService(storage *storage.SQLiteRepository, clock core.Clock) *InventoryService {
	return &InventoryService{storage: storage, clock: clock}
}

// AddProduct validates and stores a product. Category defaults to General.
func (s *InventoryService) AddProduct(ctx context.Context, p core.NewProduct) (int64, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateProduct(ctx, p, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("add product: %w", err)
	}
	return id, nil
}

// UpdateProduct applies the set fields of u and stamps updated_at.
func (s *InventoryService) UpdateProduct(ctx context.Context, id int64, u core.ProductUpdate) error {
	if u.IsEmpty() {
		return core.ErrNoFieldsToUpdate
	}
	if err := u.Validate(); err != nil {
		return err
	}
	if u.Category != nil {
		c := strings.TrimSpace(*u.Category)
		if c == "" {
			c = core.DefaultCategory
		}
		u.Category = &c
	}

	if err := s.storage.UpdateProduct(ctx, id, u, s.clock.Now()); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (s *InventoryService) GetProduct(ctx context.Context, id int64) (core.Product, error) {
	return s.storage.GetProduct(ctx, id)
}

// ListProducts returns every product, or only those in category when it is
// not empty.
func (s *InventoryService) ListProducts(ctx context.Context, category string) ([]core.Product, error) {
	return s.storage.ListProducts(ctx, strings.TrimSpace(category))
}

func (s *InventoryService) SearchProducts(ctx context.Context, term string) ([]core.Product, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.storage.ListProducts(ctx, "")
	}
	return s.storage.SearchProducts(ctx, term)
}

// DeleteProduct removes a product unless a cart line still references it.
func (s *InventoryService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.storage.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// Analytics summarises the current catalogue.
func (s *InventoryService) Analytics(ctx context.Context) (core.ProductAnalytics, error) {
	products, err := s.storage.ListProducts(ctx, "")
	if err != nil {
		return core.ProductAnalytics{}, err
	}

	a := core.ProductAnalytics{
		TotalProducts:    len(products),
		LowStockProducts: []core.Product{},
		Categories:       []string{},
	}
	seen := map[string]bool{}
	for _, p := range products {
		a.TotalInventoryValue = a.TotalInventoryValue.Add(p.Price.Mul(p.Quantity))
		if p.Quantity < core.LowStockThreshold {
			a.LowStockProducts = append(a.LowStockProducts, p)
		}
		// Listing is ordered by category, so categories come out sorted.
		if !seen[p.Category] {
			seen[p.Category] = true
			a.Categories = append(a.Categories, p.Category)
		}
	}
	a.LowStockCount = len(a.LowStockProducts)

	if a.LowStockCount > 0 {
		slog.DebugContext(ctx, "Low stock products", "count", a.LowStockCount)
	}
	return a, nil
}
