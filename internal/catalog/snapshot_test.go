package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubStore struct {
	products []Product
	err      error
}

func (s *stubStore) GetProductsByIDs(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) ([]Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

var testStore = uuid.MustParse("7b0d12e3-93b4-44c5-9b3e-6f4f4fdc2a01")

func simpleProduct(id uuid.UUID, price int64) Product {
	return Product{ID: id, StoreID: testStore, Title: "Kopi Arabika", Price: price, MRP: price + 500, InStock: true, WeightGrams: 250}
}

func TestBuildPricesLines(t *testing.T) {
	productID := uuid.New()
	builder := Builder{
		Store: &stubStore{products: []Product{simpleProduct(productID, 12_500)}},
		Now:   func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) },
	}
	snap, err := builder.Build(context.Background(), testStore, []LineInput{{ProductID: productID, Qty: 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := snap.Subtotal(); got != 37_500 {
		t.Fatalf("expected subtotal 37500, got %d", got)
	}
	if snap.ItemCount() != 3 || snap.DistinctCount() != 1 {
		t.Fatalf("unexpected counts: items=%d distinct=%d", snap.ItemCount(), snap.DistinctCount())
	}
	if got := snap.TotalWeightGrams(); got != 750 {
		t.Fatalf("expected 750g, got %d", got)
	}
}

func TestBuildProductNotFound(t *testing.T) {
	builder := Builder{Store: &stubStore{}}
	missing := uuid.New()
	_, err := builder.Build(context.Background(), testStore, []LineInput{{ProductID: missing, Qty: 1}})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	var lineErr *LineError
	if !errors.As(err, &lineErr) || lineErr.ProductID != missing {
		t.Fatalf("expected line error carrying offending product id, got %v", err)
	}
}

func TestBuildVariantPricing(t *testing.T) {
	productID := uuid.New()
	variantID := uuid.New()
	product := simpleProduct(productID, 10_000)
	product.HasVariants = true
	product.Variants = []Variant{{ID: variantID, Title: "500g", Price: 18_000, Stock: 4}}
	builder := Builder{Store: &stubStore{products: []Product{product}}}

	snap, err := builder.Build(context.Background(), testStore, []LineInput{{ProductID: productID, VariantID: &variantID, Qty: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Lines[0].UnitPrice != 18_000 {
		t.Fatalf("variant price must win over headline price, got %d", snap.Lines[0].UnitPrice)
	}

	// A variant product without a variant reference cannot be priced.
	_, err = builder.Build(context.Background(), testStore, []LineInput{{ProductID: productID, Qty: 1}})
	if !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}

	missing := uuid.New()
	_, err = builder.Build(context.Background(), testStore, []LineInput{{ProductID: productID, VariantID: &missing, Qty: 1}})
	if !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound for unknown variant, got %v", err)
	}
}

func TestBuildOutOfStock(t *testing.T) {
	productID := uuid.New()
	product := simpleProduct(productID, 9_000)
	product.InStock = false
	builder := Builder{Store: &stubStore{products: []Product{product}}}
	_, err := builder.Build(context.Background(), testStore, []LineInput{{ProductID: productID, Qty: 1}})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestBuildRejectsZeroQty(t *testing.T) {
	productID := uuid.New()
	builder := Builder{Store: &stubStore{products: []Product{simpleProduct(productID, 1_000)}}}
	_, err := builder.Build(context.Background(), testStore, []LineInput{{ProductID: productID, Qty: 0}})
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine, got %v", err)
	}
}
