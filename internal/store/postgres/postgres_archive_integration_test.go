package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"screena/backend/internal/domain"
	"screena/backend/internal/store"
)

func TestArchiveInvoiceMovesRecordAndKeepsNumbering(t *testing.T) {
	databaseURL := os.Getenv("SCREENA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SCREENA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	shop := fmt.Sprintf("it-shop-%d", time.Now().UnixNano())

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE shop = $1`, shop)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales_reports WHERE shop = $1`, shop)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE shop = $1`, shop)
	})

	product, err := s.CreateProduct(ctx, domain.Product{
		Shop:           shop,
		Name:           "IT Charger",
		Type:           domain.ProductTypeAccessory,
		Quantity:       5,
		BuyPriceCents:  6000,
		SellPriceCents: 10000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Code != 1000 {
		t.Fatalf("expected first code 1000, got %d", product.Code)
	}

	inv, err := s.CreateInvoice(ctx, domain.Invoice{
		Shop:          shop,
		PaymentMethod: domain.PaymentMethodCash,
		Items: []domain.InvoiceLine{{
			ProductID:       product.ID,
			ProductCode:     product.Code,
			ProductName:     product.Name,
			Type:            product.Type,
			Quantity:        1,
			UnitPriceCents:  10000,
			FinalPriceCents: 10000,
			TotalPriceCents: 10000,
			BuyPriceCents:   6000,
			ProfitCents:     4000,
		}},
		SubtotalCents:    10000,
		TotalCents:       10000,
		TotalProfitCents: 4000,
		Date:             time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.InvoiceNumber != 1001 {
		t.Fatalf("expected first invoice number 1001, got %d", inv.InvoiceNumber)
	}

	if err := s.ArchiveInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("archive invoice: %v", err)
	}

	if _, err := s.GetInvoice(ctx, domain.InvoiceSourceLive, inv.ID); err != store.ErrNotFound {
		t.Fatalf("expected archived invoice gone from live, got %v", err)
	}
	archived, err := s.GetInvoice(ctx, domain.InvoiceSourceArchive, inv.ID)
	if err != nil {
		t.Fatalf("get archived invoice: %v", err)
	}
	if archived.InvoiceNumber != inv.InvoiceNumber {
		t.Fatalf("archive changed invoice number: %d != %d", archived.InvoiceNumber, inv.InvoiceNumber)
	}

	// Numbering spans the archive, so the next invoice continues the sequence.
	next, err := s.NextInvoiceNumber(ctx, shop)
	if err != nil {
		t.Fatalf("next invoice number: %v", err)
	}
	if next != 1002 {
		t.Fatalf("expected next invoice number 1002 after archive, got %d", next)
	}
}

func TestAdjustProductQuantityDeletesAtZero(t *testing.T) {
	databaseURL := os.Getenv("SCREENA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SCREENA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	shop := fmt.Sprintf("it-shop-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE shop = $1`, shop)
	})

	product, err := s.CreateProduct(ctx, domain.Product{
		Shop:           shop,
		Name:           "IT Case",
		Type:           domain.ProductTypeAccessory,
		Quantity:       2,
		BuyPriceCents:  2000,
		SellPriceCents: 4000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	deleted, err := s.AdjustProductQuantity(ctx, product.ID, -1)
	if err != nil {
		t.Fatalf("adjust -1: %v", err)
	}
	if deleted {
		t.Fatalf("expected product kept at quantity 1")
	}

	if _, err := s.AdjustProductQuantity(ctx, product.ID, -2); err != store.ErrInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	deleted, err = s.AdjustProductQuantity(ctx, product.ID, -1)
	if err != nil {
		t.Fatalf("adjust to zero: %v", err)
	}
	if !deleted {
		t.Fatalf("expected product deleted at quantity zero")
	}
	if _, err := s.GetProductByID(ctx, product.ID); err != store.ErrNotFound {
		t.Fatalf("expected deleted product not found, got %v", err)
	}
}
