package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID             int              `gorm:"primary_key" json:"id"`
	BusinessId     string           `gorm:"index;not null" json:"business_id"`
	ClientId       int              `gorm:"index;not null" json:"client_id" binding:"required"`
	ClientName     string           `gorm:"size:255" json:"client_name"`
	ClientOrderId  int              `gorm:"index;default:null" json:"client_order_id"`
	QuoteId        int              `gorm:"index;default:null" json:"quote_id"`
	SequenceNo     int64            `gorm:"not null" json:"sequence_no"`
	InvoiceNumber  string           `gorm:"size:255;not null" json:"invoice_number"`
	Date           time.Time        `gorm:"not null" json:"date" binding:"required"`
	DueDate        time.Time        `json:"due_date"`
	Items          []InvoiceItem    `gorm:"foreignKey:InvoiceId" json:"items"`
	SubTotal       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	Discount       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"discount"`
	DiscountAmount decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	Vat            decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"vat"`
	VatAmount      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	TotalAmount    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Retenue        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"retenue"`
	RetenueAmount  decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"retenue_amount"`
	NetAPayer      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"net_a_payer"`
	Status         InvoiceStatus    `gorm:"size:50;not null" json:"status"`
	AmountPaid     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	Payments       []InvoicePayment `gorm:"foreignKey:InvoiceId" json:"payments"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceItem snapshots product name, reference and purchase cost at sale
// time; the snapshots are point-in-time facts and are never refreshed.
type InvoiceItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	ProductName   string          `gorm:"size:255" json:"product_name"`
	Reference     string          `gorm:"size:100" json:"reference"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoicePayment rows are append-only; a payment is never edited or removed
// once written, a cancelled invoice keeps its payment history.
type InvoicePayment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	InvoiceId    int             `gorm:"index;not null" json:"invoice_id"`
	SettlementId int             `gorm:"index;default:null" json:"settlement_id"`
	PaymentRef   string          `gorm:"size:64" json:"payment_ref"`
	Date         time.Time       `gorm:"not null" json:"date"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Method       PaymentMethod   `gorm:"size:50;not null" json:"method"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewInvoice struct {
	ClientId int              `json:"client_id" binding:"required"`
	Date     time.Time        `json:"date" binding:"required"`
	DueDate  time.Time        `json:"due_date"`
	Discount decimal.Decimal  `json:"discount"`
	Vat      decimal.Decimal  `json:"vat"`
	Retenue  decimal.Decimal  `json:"retenue"`
	Items    []NewInvoiceItem `json:"items" binding:"required,dive"`
}

type NewInvoiceItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// RemainingBalance is the invoice's outstanding debt.
func (inv *Invoice) RemainingBalance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.AmountPaid)
}

// refreshStatus derives the status from amountPaid vs totalAmount within
// the 0.001 currency tolerance. Cancelled is sticky.
func (inv *Invoice) refreshStatus() {
	if inv.Status == InvoiceStatusCancelled {
		return
	}
	switch {
	case inv.AmountPaid.GreaterThanOrEqual(inv.TotalAmount.Sub(utils.Epsilon)) && inv.AmountPaid.IsPositive():
		inv.Status = InvoiceStatusPaid
	case inv.AmountPaid.IsPositive():
		inv.Status = InvoiceStatusPartiallyPaid
	default:
		inv.Status = InvoiceStatusUnpaid
	}
}

func (input *NewInvoice) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Client](ctx, businessId, input.ClientId); err != nil {
		return errors.New("client not found")
	}
	if len(input.Items) == 0 {
		return errors.New("invoice needs at least one item")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return errors.New("item unit price cannot be negative")
		}
	}
	if input.Discount.IsNegative() || input.Vat.IsNegative() || input.Retenue.IsNegative() {
		return errors.New("percentages cannot be negative")
	}
	return nil
}

// buildInvoiceItems maps raw item input into InvoiceItems, snapshotting the
// product name, reference and current purchase cost per line.
func buildInvoiceItems(tx *gorm.DB, businessId string, items []NewInvoiceItem) ([]InvoiceItem, decimal.Decimal, error) {
	built := make([]InvoiceItem, 0, len(items))
	subTotal := decimal.Zero
	for _, item := range items {
		var product Product
		if err := tx.Where("business_id = ?", businessId).First(&product, item.ProductId).Error; err != nil {
			return nil, decimal.Zero, fmt.Errorf("product %d not found", item.ProductId)
		}
		total := item.Quantity.Mul(item.UnitPrice)
		built = append(built, InvoiceItem{
			ProductId:     product.ID,
			ProductName:   product.Name,
			Reference:     product.Reference,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Total:         total,
			PurchasePrice: product.PurchasePrice,
		})
		subTotal = subTotal.Add(total)
	}
	return built, subTotal, nil
}

// persistNewInvoice is the shared invoice-create path behind CreateInvoice
// and the order/quote conversions: allocates the number, computes the
// monetary breakdown, writes the invoice and decrements stock, all on the
// caller's transaction.
func persistNewInvoice(tx *gorm.DB, businessId string, client *Client, items []InvoiceItem,
	date time.Time, dueDate time.Time, discount, vat, retenue decimal.Decimal,
	clientOrderId int, quoteId int) (*Invoice, error) {

	number, seqNo, err := AllocateDocumentNumber(tx, businessId, ModuleInvoice)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Invoice](tx.Statement.Context, businessId, "invoice_number", number, 0); err != nil {
		return nil, err
	}

	subTotal := decimal.Zero
	for _, item := range items {
		subTotal = subTotal.Add(item.Total)
	}
	totals := utils.CalculateDocumentTotals(subTotal, discount, vat, retenue)

	invoice := Invoice{
		BusinessId:     businessId,
		ClientId:       client.ID,
		ClientName:     client.Name,
		ClientOrderId:  clientOrderId,
		QuoteId:        quoteId,
		SequenceNo:     seqNo,
		InvoiceNumber:  number,
		Date:           date,
		DueDate:        dueDate,
		Items:          items,
		SubTotal:       totals.SubTotal,
		Discount:       discount,
		DiscountAmount: totals.DiscountAmount,
		Vat:            vat,
		VatAmount:      totals.VatAmount,
		TotalAmount:    totals.TotalAmount,
		Retenue:        retenue,
		RetenueAmount:  totals.RetenueAmount,
		NetAPayer:      totals.NetAPayer,
		Status:         InvoiceStatusUnpaid,
		AmountPaid:     decimal.Zero,
	}

	if err := ApplyInvoiceStockDecrement(tx, businessId, items); err != nil {
		return nil, err
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapCreateInvoice); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	client, err := utils.FetchModel[Client](ctx, businessId, input.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}

	release, err := utils.BusinessLock(ctx, businessId, "stockLock", "invoice.go", "CreateInvoice")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	items, _, err := buildInvoiceItems(tx, businessId, input.Items)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice, err := persistNewInvoice(tx, businessId, client, items,
		input.Date, input.DueDate, input.Discount, input.Vat, input.Retenue, 0, 0)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return invoice, nil
}

func UpdateInvoice(ctx context.Context, id int, input *NewInvoice) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapEditInvoice); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, errors.New("invoice not found")
	}
	if invoice.Status == InvoiceStatusPaid || invoice.Status == InvoiceStatusCancelled {
		return nil, stateErrorf("cannot modify a %s invoice", string(invoice.Status))
	}
	client, err := utils.FetchModel[Client](ctx, businessId, input.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}

	release, err := utils.BusinessLock(ctx, businessId, "stockLock", "invoice.go", "UpdateInvoice")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	// Net stock delta: give the original quantities back first, then
	// validate the new list against the restored availability. Any
	// shortfall rejects the whole edit.
	if err := RestoreInvoiceStock(tx, businessId, invoice.Items); err != nil {
		tx.Rollback()
		return nil, err
	}
	newItems, subTotal, err := buildInvoiceItems(tx, businessId, input.Items)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := ApplyInvoiceStockDecrement(tx, businessId, newItems); err != nil {
		tx.Rollback()
		return nil, err
	}

	totals := utils.CalculateDocumentTotals(subTotal, input.Discount, input.Vat, input.Retenue)

	invoice.ClientId = client.ID
	invoice.ClientName = client.Name
	invoice.Date = input.Date
	invoice.DueDate = input.DueDate
	invoice.SubTotal = totals.SubTotal
	invoice.Discount = input.Discount
	invoice.DiscountAmount = totals.DiscountAmount
	invoice.Vat = input.Vat
	invoice.VatAmount = totals.VatAmount
	invoice.TotalAmount = totals.TotalAmount
	invoice.Retenue = input.Retenue
	invoice.RetenueAmount = totals.RetenueAmount
	invoice.NetAPayer = totals.NetAPayer
	invoice.refreshStatus()

	if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&InvoiceItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range newItems {
		newItems[i].InvoiceId = invoice.ID
	}
	if err := tx.Create(&newItems).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice.Items = newItems
	if err := tx.Omit("Items", "Payments").Save(invoice).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return invoice, nil
}

// CancelInvoice restores stock for every line and marks the invoice
// Cancelled. Payments already recorded stay on the invoice, by accounting
// decision: amountPaid is not reversed.
func CancelInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapCancelInvoice); err != nil {
		return nil, err
	}
	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, errors.New("invoice not found")
	}
	if invoice.Status == InvoiceStatusCancelled {
		return nil, stateErrorf("invoice is already cancelled")
	}

	release, err := utils.BusinessLock(ctx, businessId, "stockLock", "invoice.go", "CancelInvoice")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	if err := RestoreInvoiceStock(tx, businessId, invoice.Items); err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice.Status = InvoiceStatusCancelled
	if err := tx.Omit("Items", "Payments").Save(invoice).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Invoice](ctx, businessId, id, "Items", "Payments")
}

func GetInvoices(ctx context.Context, clientId *int, status *InvoiceStatus) ([]*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if clientId != nil && *clientId > 0 {
		dbCtx = dbCtx.Where("client_id = ?", *clientId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var results []*Invoice
	err := dbCtx.Preload("Items").Preload("Payments").Order("date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
