package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/models"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/shopspring/decimal"
)

const testBusinessId = "biz-0001"

// setupTest opens a fresh in-memory database, migrates the schema and
// returns a context carrying a SuperAdmin session for testBusinessId.
func setupTest(t *testing.T) context.Context {
	t.Helper()
	if err := config.ConnectSqliteDatabase("file:" + t.Name() + "?mode=memory&cache=shared"); err != nil {
		t.Fatalf("ConnectSqliteDatabase: %v", err)
	}
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, testBusinessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUserRoleInContext(ctx, utils.RoleSuperAdmin)
	return ctx
}

func createTestClient(t *testing.T, ctx context.Context, name string) *models.Client {
	t.Helper()
	client, err := models.CreateClient(ctx, &models.NewClient{Name: name})
	if err != nil {
		t.Fatalf("CreateClient(%s): %v", name, err)
	}
	return client
}

func createTestSupplier(t *testing.T, ctx context.Context, name string) *models.Supplier {
	t.Helper()
	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: name})
	if err != nil {
		t.Fatalf("CreateSupplier(%s): %v", name, err)
	}
	return supplier
}

func createTestProduct(t *testing.T, ctx context.Context, name string, stock int64, purchasePrice int64, unitPrice int64) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:            name,
		Reference:       "REF-" + name,
		PurchasePrice:   decimal.NewFromInt(purchasePrice),
		UnitPrice:       decimal.NewFromInt(unitPrice),
		QuantityInStock: decimal.NewFromInt(stock),
	})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", name, err)
	}
	return product
}

func createTestInvoice(t *testing.T, ctx context.Context, clientId int, date time.Time, items []models.NewInvoiceItem) *models.Invoice {
	t.Helper()
	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ClientId: clientId,
		Date:     date,
		DueDate:  date.AddDate(0, 1, 0),
		Items:    items,
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return invoice
}

func reloadProduct(t *testing.T, ctx context.Context, id int) *models.Product {
	t.Helper()
	product, err := models.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct(%d): %v", id, err)
	}
	return product
}

func reloadInvoice(t *testing.T, ctx context.Context, id int) *models.Invoice {
	t.Helper()
	invoice, err := models.GetInvoice(ctx, id)
	if err != nil {
		t.Fatalf("GetInvoice(%d): %v", id, err)
	}
	return invoice
}

func decEq(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s = %s, want %s", label, got.String(), want)
	}
}
