package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/atlasgestion/gestion_backend/models"
	"github.com/shopspring/decimal"
)

func TestCreateInvoiceDecrementsStockAndComputesTotals(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client A")
	product := createTestProduct(t, ctx, "Widget", 10, 30, 50)

	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ClientId: client.ID,
		Date:     time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Discount: decimal.NewFromInt(10),
		Vat:      decimal.NewFromInt(20),
		Retenue:  decimal.NewFromInt(5),
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(50)},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	// 200 gross, 10% discount -> 180 taxable, 20% vat -> 36,
	// total 216, 5% retenue on taxable -> 9, net 207.
	decEq(t, "sub total", invoice.SubTotal, "200")
	decEq(t, "discount amount", invoice.DiscountAmount, "20")
	decEq(t, "vat amount", invoice.VatAmount, "36")
	decEq(t, "total amount", invoice.TotalAmount, "216")
	decEq(t, "retenue amount", invoice.RetenueAmount, "9")
	decEq(t, "net a payer", invoice.NetAPayer, "207")
	if invoice.Status != models.InvoiceStatusUnpaid {
		t.Fatalf("new invoice status = %s, want %s", invoice.Status, models.InvoiceStatusUnpaid)
	}
	if invoice.InvoiceNumber == "" || invoice.SequenceNo == 0 {
		t.Fatalf("invoice number not allocated: %q seq %d", invoice.InvoiceNumber, invoice.SequenceNo)
	}

	product = reloadProduct(t, ctx, product.ID)
	decEq(t, "stock after sale", product.QuantityInStock, "6")

	// Snapshots carry the product's name and cost at sale time.
	if len(invoice.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(invoice.Items))
	}
	if invoice.Items[0].ProductName != "Widget" {
		t.Fatalf("item product name = %q", invoice.Items[0].ProductName)
	}
	decEq(t, "item purchase price snapshot", invoice.Items[0].PurchasePrice, "30")
}

func TestCreateInvoiceRejectsInsufficientStock(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client B")
	product := createTestProduct(t, ctx, "Widget", 3, 30, 50)

	_, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ClientId: client.ID,
		Date:     time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(50)},
		},
	})
	if err == nil {
		t.Fatalf("expected insufficient stock rejection, got nil")
	}
	if !strings.Contains(err.Error(), "insufficient stock") {
		t.Fatalf("unexpected error: %v", err)
	}

	product = reloadProduct(t, ctx, product.ID)
	decEq(t, "stock untouched", product.QuantityInStock, "3")
}

func TestCreateInvoiceChecksAggregateQuantityAcrossLines(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client C")
	product := createTestProduct(t, ctx, "Widget", 5, 30, 50)

	// Two lines of the same product, each fine alone, 6 combined.
	_, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ClientId: client.ID,
		Date:     time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(50)},
			{ProductId: product.ID, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(50)},
		},
	})
	if err == nil {
		t.Fatalf("expected rejection for combined quantity over stock")
	}
}

func TestCancelInvoiceRestoresStockOnce(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client D")
	product := createTestProduct(t, ctx, "Widget", 10, 30, 50)

	invoice := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(50)}})
	decEq(t, "stock after sale", reloadProduct(t, ctx, product.ID).QuantityInStock, "6")

	cancelled, err := models.CancelInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}
	if cancelled.Status != models.InvoiceStatusCancelled {
		t.Fatalf("status = %s, want %s", cancelled.Status, models.InvoiceStatusCancelled)
	}
	decEq(t, "stock restored", reloadProduct(t, ctx, product.ID).QuantityInStock, "10")

	// Cancelling twice must not restore twice.
	if _, err := models.CancelInvoice(ctx, invoice.ID); err == nil {
		t.Fatalf("expected second cancel to be rejected")
	}
	decEq(t, "stock unchanged after rejected cancel", reloadProduct(t, ctx, product.ID).QuantityInStock, "10")
}

func TestCancelInvoiceKeepsPaymentHistory(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client E")
	product := createTestProduct(t, ctx, "Widget", 10, 30, 50)

	invoice := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}})

	if _, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{invoice.ID},
		Amount:     decimal.NewFromInt(40),
		Date:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}

	if _, err := models.CancelInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}

	invoice = reloadInvoice(t, ctx, invoice.ID)
	if invoice.Status != models.InvoiceStatusCancelled {
		t.Fatalf("status = %s, want %s", invoice.Status, models.InvoiceStatusCancelled)
	}
	if len(invoice.Payments) != 1 {
		t.Fatalf("expected payment history to survive cancellation, got %d rows", len(invoice.Payments))
	}
	decEq(t, "amount paid preserved", invoice.AmountPaid, "40")
}

func TestUpdateInvoiceAppliesNetStockDelta(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client F")
	product := createTestProduct(t, ctx, "Widget", 10, 30, 50)

	invoice := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(50)}})
	decEq(t, "stock after sale", reloadProduct(t, ctx, product.ID).QuantityInStock, "6")

	// 4 -> 7 units: only 6 on shelf but the invoice's own 4 come back
	// first, so 6+4 >= 7 passes.
	updated, err := models.UpdateInvoice(ctx, invoice.ID, &models.NewInvoice{
		ClientId: client.ID,
		Date:     invoice.Date,
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(7), UnitPrice: decimal.NewFromInt(50)},
		},
	})
	if err != nil {
		t.Fatalf("UpdateInvoice: %v", err)
	}
	decEq(t, "updated sub total", updated.SubTotal, "350")
	decEq(t, "stock after edit", reloadProduct(t, ctx, product.ID).QuantityInStock, "3")

	// 7 -> 11 units: 3 + 7 restored = 10 < 11, rejected, nothing moves.
	_, err = models.UpdateInvoice(ctx, invoice.ID, &models.NewInvoice{
		ClientId: client.ID,
		Date:     invoice.Date,
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(11), UnitPrice: decimal.NewFromInt(50)},
		},
	})
	if err == nil {
		t.Fatalf("expected rejection when edit exceeds restored stock")
	}
	decEq(t, "stock unchanged after rejected edit", reloadProduct(t, ctx, product.ID).QuantityInStock, "3")

	invoice = reloadInvoice(t, ctx, invoice.ID)
	decEq(t, "invoice keeps previous quantity", invoice.Items[0].Quantity, "7")
}

func TestUpdateInvoiceRejectedOncePaidOrCancelled(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client G")
	product := createTestProduct(t, ctx, "Widget", 10, 30, 50)

	invoice := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}})

	if _, err := models.CreateSettlement(ctx, &models.NewSettlement{
		ClientId:   client.ID,
		InvoiceIds: []int{invoice.ID},
		Amount:     decimal.NewFromInt(100),
		Date:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}

	_, err := models.UpdateInvoice(ctx, invoice.ID, &models.NewInvoice{
		ClientId: client.ID,
		Date:     invoice.Date,
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)},
		},
	})
	if err == nil {
		t.Fatalf("expected paid invoice to be immutable")
	}
	if !strings.Contains(err.Error(), "cannot modify") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInvoiceNumbersAreSequentialPerBusiness(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client H")
	product := createTestProduct(t, ctx, "Widget", 100, 30, 50)

	first := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}})
	second := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}})

	if first.InvoiceNumber != "INV-000001" {
		t.Fatalf("first invoice number = %q", first.InvoiceNumber)
	}
	if second.InvoiceNumber != "INV-000002" {
		t.Fatalf("second invoice number = %q", second.InvoiceNumber)
	}
	if second.SequenceNo != first.SequenceNo+1 {
		t.Fatalf("sequence numbers not consecutive: %d then %d", first.SequenceNo, second.SequenceNo)
	}
}

func TestEditThenCancelInvoiceRestoresOriginalStock(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client J")
	product := createTestProduct(t, ctx, "Widget", 10, 30, 50)

	invoice := createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{{ProductId: product.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(50)}})
	decEq(t, "stock after sale", reloadProduct(t, ctx, product.ID).QuantityInStock, "6")

	if _, err := models.UpdateInvoice(ctx, invoice.ID, &models.NewInvoice{
		ClientId: client.ID,
		Date:     invoice.Date,
		Items: []models.NewInvoiceItem{
			{ProductId: product.ID, Quantity: decimal.NewFromInt(7), UnitPrice: decimal.NewFromInt(50)},
		},
	}); err != nil {
		t.Fatalf("UpdateInvoice: %v", err)
	}
	decEq(t, "stock after edit", reloadProduct(t, ctx, product.ID).QuantityInStock, "3")

	if _, err := models.CancelInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}
	decEq(t, "stock after edit then cancel", reloadProduct(t, ctx, product.ID).QuantityInStock, "10")
}

func TestCreateInvoiceDecrementsEveryProduct(t *testing.T) {
	ctx := setupTest(t)
	client := createTestClient(t, ctx, "Client K")
	cable := createTestProduct(t, ctx, "Cable", 20, 5, 12)
	screen := createTestProduct(t, ctx, "Screen", 8, 90, 150)
	keyboard := createTestProduct(t, ctx, "Keyboard", 15, 18, 35)

	createTestInvoice(t, ctx, client.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		[]models.NewInvoiceItem{
			{ProductId: keyboard.ID, Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(35)},
			{ProductId: cable.ID, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(12)},
			{ProductId: screen.ID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(150)},
		})

	decEq(t, "cable stock", reloadProduct(t, ctx, cable.ID).QuantityInStock, "17")
	decEq(t, "screen stock", reloadProduct(t, ctx, screen.ID).QuantityInStock, "6")
	decEq(t, "keyboard stock", reloadProduct(t, ctx, keyboard.ID).QuantityInStock, "10")
}
