package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/shopspring/decimal"
)

// Quote mirrors the invoice's commercial fields. Accepting a quote is the
// only transition with side effects: it spawns an invoice and decrements
// stock, exactly once.
type Quote struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	ClientId       int             `gorm:"index;not null" json:"client_id" binding:"required"`
	ClientName     string          `gorm:"size:255" json:"client_name"`
	SequenceNo     int64           `gorm:"not null" json:"sequence_no"`
	QuoteNumber    string          `gorm:"size:255;not null" json:"quote_number"`
	Date           time.Time       `gorm:"not null" json:"date" binding:"required"`
	Items          []QuoteItem     `gorm:"foreignKey:QuoteId" json:"items"`
	SubTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	Discount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	Vat            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat"`
	VatAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Retenue        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retenue"`
	RetenueAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retenue_amount"`
	NetAPayer      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_a_payer"`
	Status         QuoteStatus     `gorm:"size:50;not null" json:"status"`
	InvoiceId      int             `gorm:"default:null" json:"invoice_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuoteItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	QuoteId     int             `gorm:"index;not null" json:"quote_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	ProductName string          `gorm:"size:255" json:"product_name"`
	Reference   string          `gorm:"size:100" json:"reference"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Total       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewQuote struct {
	ClientId int              `json:"client_id" binding:"required"`
	Date     time.Time        `json:"date" binding:"required"`
	Discount decimal.Decimal  `json:"discount"`
	Vat      decimal.Decimal  `json:"vat"`
	Retenue  decimal.Decimal  `json:"retenue"`
	Status   QuoteStatus      `json:"status"`
	Items    []NewInvoiceItem `json:"items" binding:"required,dive"`
}

func (input *NewQuote) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Client](ctx, businessId, input.ClientId); err != nil {
		return errors.New("client not found")
	}
	if len(input.Items) == 0 {
		return errors.New("quote needs at least one item")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return errors.New("item unit price cannot be negative")
		}
	}
	if input.Status != "" {
		if err := input.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func mapQuoteItems(ctx context.Context, businessId string, items []NewInvoiceItem) ([]QuoteItem, decimal.Decimal, error) {
	built := make([]QuoteItem, 0, len(items))
	subTotal := decimal.Zero
	for _, item := range items {
		product, err := utils.FetchModel[Product](ctx, businessId, item.ProductId)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("product %d not found", item.ProductId)
		}
		total := item.Quantity.Mul(item.UnitPrice)
		built = append(built, QuoteItem{
			ProductId:   product.ID,
			ProductName: product.Name,
			Reference:   product.Reference,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       total,
		})
		subTotal = subTotal.Add(total)
	}
	return built, subTotal, nil
}

func (q *Quote) applyTotals(subTotal, discount, vat, retenue decimal.Decimal) {
	totals := utils.CalculateDocumentTotals(subTotal, discount, vat, retenue)
	q.SubTotal = totals.SubTotal
	q.Discount = discount
	q.DiscountAmount = totals.DiscountAmount
	q.Vat = vat
	q.VatAmount = totals.VatAmount
	q.TotalAmount = totals.TotalAmount
	q.Retenue = retenue
	q.RetenueAmount = totals.RetenueAmount
	q.NetAPayer = totals.NetAPayer
}

// CreateQuote stores the quote as Draft (or Sent); no stock effect.
func CreateQuote(ctx context.Context, input *NewQuote) (*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageQuote); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	if input.Status == QuoteStatusAccepted || input.Status == QuoteStatusDeclined {
		return nil, errors.New("a new quote starts as Draft or Sent")
	}
	client, err := utils.FetchModel[Client](ctx, businessId, input.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}
	items, subTotal, err := mapQuoteItems(ctx, businessId, input.Items)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	number, seqNo, err := AllocateDocumentNumber(tx, businessId, ModuleQuote)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = QuoteStatusDraft
	}
	quote := Quote{
		BusinessId:  businessId,
		ClientId:    client.ID,
		ClientName:  client.Name,
		SequenceNo:  seqNo,
		QuoteNumber: number,
		Date:        input.Date,
		Items:       items,
		Status:      status,
	}
	quote.applyTotals(subTotal, input.Discount, input.Vat, input.Retenue)

	if err := tx.Create(&quote).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// UpdateQuote recomputes commercial fields. When the status moves into
// Accepted (from Draft or Sent only, checked against the previous status so
// the side effect fires exactly once) the quote is converted into an
// invoice and stock is decremented.
func UpdateQuote(ctx context.Context, id int, input *NewQuote) (*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageQuote); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	quote, err := utils.FetchModel[Quote](ctx, businessId, id, "Items")
	if err != nil {
		return nil, errors.New("quote not found")
	}
	previousStatus := quote.Status
	if previousStatus == QuoteStatusAccepted {
		return nil, stateErrorf("an accepted quote can no longer be modified")
	}
	client, err := utils.FetchModel[Client](ctx, businessId, input.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}
	items, subTotal, err := mapQuoteItems(ctx, businessId, input.Items)
	if err != nil {
		return nil, err
	}

	accepting := input.Status == QuoteStatusAccepted &&
		(previousStatus == QuoteStatusDraft || previousStatus == QuoteStatusSent)
	if input.Status == QuoteStatusAccepted && !accepting {
		return nil, stateErrorf("quote %s cannot be accepted from status %s", quote.QuoteNumber, string(previousStatus))
	}

	if accepting {
		release, err := utils.BusinessLock(ctx, businessId, "stockLock", "quote.go", "UpdateQuote")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	quote.ClientId = client.ID
	quote.ClientName = client.Name
	quote.Date = input.Date
	quote.applyTotals(subTotal, input.Discount, input.Vat, input.Retenue)
	if input.Status != "" {
		quote.Status = input.Status
	}

	if err := tx.Where("quote_id = ?", quote.ID).Delete(&QuoteItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range items {
		items[i].QuoteId = quote.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	quote.Items = items

	if accepting {
		productIds := make([]int, len(items))
		quantities := make([]decimal.Decimal, len(items))
		unitPrices := make([]decimal.Decimal, len(items))
		for i, item := range items {
			productIds[i] = item.ProductId
			quantities[i] = item.Quantity
			unitPrices[i] = item.UnitPrice
		}
		invoiceItems, err := convertItemsToInvoiceItems(tx, businessId, productIds, quantities, unitPrices)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		invoice, err := persistNewInvoice(tx, businessId, client, invoiceItems,
			input.Date, input.Date, input.Discount, input.Vat, input.Retenue, 0, quote.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		quote.InvoiceId = invoice.ID
	}

	if err := tx.Omit("Items").Save(quote).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	if accepting {
		_ = utils.InvalidateListCache[Product](businessId)
	}
	return quote, nil
}

func GetQuote(ctx context.Context, id int) (*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Quote](ctx, businessId, id, "Items")
}

func GetQuotes(ctx context.Context, clientId *int) ([]*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if clientId != nil && *clientId > 0 {
		dbCtx = dbCtx.Where("client_id = ?", *clientId)
	}
	var results []*Quote
	if err := dbCtx.Preload("Items").Order("date desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
