package memory

import (
	"context"
	"errors"
	"testing"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func TestCreateSaleDuplicateReferenceConflicts(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	sale := domain.Sale{Reference: "CHK202608311200000001"}
	cashierID := int64(2)
	sale.CashierID = &cashierID
	items := []domain.SaleLine{{ProductID: 1, Quantity: 1, UnitPriceCents: 8900}}

	if _, err := repo.CreateSale(ctx, sale, items); err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	if _, err := repo.CreateSale(ctx, sale, items); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate reference, got %v", err)
	}
}

func TestCreateSaleIdempotencyShortCircuits(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()
	cashierID := int64(2)

	first, err := repo.CreateSale(ctx, domain.Sale{
		Reference:      "CHK202608311200000002",
		CashierID:      &cashierID,
		IdempotencyKey: "idem-1",
	}, []domain.SaleLine{{ProductID: 1, Quantity: 1, UnitPriceCents: 8900}})
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}

	// Same key with a fresh reference returns the original row.
	replay, err := repo.CreateSale(ctx, domain.Sale{
		Reference:      "CHK202608311200009999",
		CashierID:      &cashierID,
		IdempotencyKey: "idem-1",
	}, []domain.SaleLine{{ProductID: 1, Quantity: 1, UnitPriceCents: 8900}})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("expected replay to return sale %d, got %d", first.ID, replay.ID)
	}

	product, err := repo.GetProductByID(ctx, 1)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 39 {
		t.Fatalf("expected a single decrement to 39, got %d", product.Stock)
	}
}

func TestDeleteProductGuardsReferences(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	if err := repo.AddToCart(ctx, 3, 1, 2); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if err := repo.DeleteProduct(ctx, 1); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting carted product, got %v", err)
	}

	// Unreferenced products delete cleanly.
	if err := repo.DeleteProduct(ctx, 2); err != nil {
		t.Fatalf("delete unreferenced product: %v", err)
	}
	if _, err := repo.GetProductByID(ctx, 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected product gone, got %v", err)
	}
}

func TestCreateSupplyRequiresExistingProduct(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	_, err := repo.CreateSupply(ctx, domain.Supply{
		Reference:          "SUP202608311200000001",
		SupplierName:       "supplier",
		ProductID:          9999,
		Quantity:           5,
		PurchasePriceCents: 100,
	})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}
