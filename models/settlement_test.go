package models_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/atlasgestion/gestion_backend/models"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/shopspring/decimal"
)

func TestSettlementAllocatesOldestInvoiceFirst(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client A")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	older := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}})
	newer := createTestInvoice(t, ctx, client.ID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}})

	decEq(t, "older total", older.TotalAmount, "100")
	decEq(t, "newer total", newer.TotalAmount, "50")

	settlement, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{newer.ID, older.ID},
		Amount:     decimal.NewFromInt(120),
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}

	if len(settlement.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(settlement.Allocations))
	}
	if settlement.Allocations[0].InvoiceId != older.ID {
		t.Fatalf("expected the oldest invoice to be settled first")
	}
	decEq(t, "allocation to older", settlement.Allocations[0].Amount, "100")
	decEq(t, "allocation to newer", settlement.Allocations[1].Amount, "20")

	allocated := decimal.Zero
	for _, a := range settlement.Allocations {
		allocated = allocated.Add(a.Amount)
	}
	decEq(t, "allocated total", allocated, "120")

	older = reloadInvoice(t, ctx, older.ID)
	if older.Status != models.InvoiceStatusPaid {
		t.Fatalf("older invoice status = %s, want %s", older.Status, models.InvoiceStatusPaid)
	}
	decEq(t, "older amount paid", older.AmountPaid, "100")

	newer = reloadInvoice(t, ctx, newer.ID)
	if newer.Status != models.InvoiceStatusPartiallyPaid {
		t.Fatalf("newer invoice status = %s, want %s", newer.Status, models.InvoiceStatusPartiallyPaid)
	}
	decEq(t, "newer amount paid", newer.AmountPaid, "20")
	decEq(t, "newer remaining", newer.RemainingBalance(), "30")
}

func TestSettlementRejectsOvershootWithoutWriting(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client B")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	invA := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}})
	invB := createTestInvoice(t, ctx, client.ID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}})

	_, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{invA.ID, invB.ID},
		Amount:     decimal.NewFromInt(200),
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodTransfer,
	})
	if err == nil {
		t.Fatalf("expected overshoot rejection, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds the remaining balance") {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []int{invA.ID, invB.ID} {
		inv := reloadInvoice(t, ctx, id)
		if inv.Status != models.InvoiceStatusUnpaid {
			t.Fatalf("invoice %d status = %s, want untouched %s", id, inv.Status, models.InvoiceStatusUnpaid)
		}
		if !inv.AmountPaid.IsZero() {
			t.Fatalf("invoice %d amount paid = %s, want 0", id, inv.AmountPaid.String())
		}
		if len(inv.Payments) != 0 {
			t.Fatalf("invoice %d has %d payments, want none", id, len(inv.Payments))
		}
	}

	settlements, err := models.GetSettlements(ctx, nil)
	if err != nil {
		t.Fatalf("GetSettlements: %v", err)
	}
	if len(settlements) != 0 {
		t.Fatalf("expected no settlement rows after rejection, got %d", len(settlements))
	}
}

func TestSettlementToleratesEpsilonOvershoot(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client C")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	inv := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(50)}})
	decEq(t, "invoice total", inv.TotalAmount, "150")

	// Within the 0.001 tolerance: accepted, invoice never overpaid.
	settlement, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{inv.ID},
		Amount:     decimal.RequireFromString("150.0005"),
		Date:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCheck,
	})
	if err != nil {
		t.Fatalf("CreateSettlement within tolerance: %v", err)
	}
	if len(settlement.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(settlement.Allocations))
	}
	decEq(t, "allocation capped at balance", settlement.Allocations[0].Amount, "150")

	inv = reloadInvoice(t, ctx, inv.ID)
	if inv.Status != models.InvoiceStatusPaid {
		t.Fatalf("invoice status = %s, want %s", inv.Status, models.InvoiceStatusPaid)
	}
	decEq(t, "amount paid", inv.AmountPaid, "150")
}

func TestSettlementRejectsOvershootBeyondEpsilon(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client D")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	inv := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(50)}})

	_, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{inv.ID},
		Amount:     decimal.RequireFromString("150.002"),
		Date:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	})
	if err == nil {
		t.Fatalf("expected rejection beyond tolerance, got nil")
	}
}

func TestSettlementRejectsPaidAndCancelledInvoices(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client E")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	inv := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}})

	if _, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{inv.ID},
		Amount:     decimal.NewFromInt(100),
		Date:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}

	// The invoice is now Paid; it can no longer receive payments.
	_, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{inv.ID},
		Amount:     decimal.NewFromInt(10),
		Date:       time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	})
	if err == nil {
		t.Fatalf("expected paid invoice to reject further settlements")
	}
	if !strings.Contains(err.Error(), "cannot receive payments") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSettlementRejectsForeignInvoice(t *testing.T) {
	ctx := setupTest(t)
	clientA := createTestClient(t, ctx, "Client F")
	clientB := createTestClient(t, ctx, "Client G")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	inv := createTestInvoice(t, ctx, clientA.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}})

	_, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   clientB.ID,
		InvoiceIds: []int{inv.ID},
		Amount:     decimal.NewFromInt(50),
		Date:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	})
	if err == nil {
		t.Fatalf("expected rejection for an invoice of another client")
	}
	if !strings.Contains(err.Error(), "does not belong") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSettlementRejectsUnknownInvoiceId(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client A")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	inv := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}})

	_, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{inv.ID, 9999},
		Amount:     decimal.NewFromInt(50),
		Date:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not-found for an unknown invoice id, got %v", err)
	}

	reloaded := reloadInvoice(t, ctx, inv.ID)
	decEq(t, "amount paid after rejection", reloaded.AmountPaid, "0")
}
