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

type ClientOrder struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"index;not null" json:"business_id"`
	ClientId    int               `gorm:"index;not null" json:"client_id" binding:"required"`
	ClientName  string            `gorm:"size:255" json:"client_name"`
	SequenceNo  int64             `gorm:"not null" json:"sequence_no"`
	OrderNumber string            `gorm:"size:255;not null" json:"order_number"`
	Date        time.Time         `gorm:"not null" json:"date" binding:"required"`
	Items       []ClientOrderItem `gorm:"foreignKey:ClientOrderId" json:"items"`
	TotalAmount decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status      ClientOrderStatus `gorm:"size:50;not null" json:"status"`
	InvoiceId   int               `gorm:"default:null" json:"invoice_id"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type ClientOrderItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ClientOrderId int             `gorm:"index;not null" json:"client_order_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	ProductName   string          `gorm:"size:255" json:"product_name"`
	Reference     string          `gorm:"size:100" json:"reference"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClientOrder struct {
	ClientId int                  `json:"client_id" binding:"required"`
	Date     time.Time            `json:"date" binding:"required"`
	Items    []NewClientOrderItem `json:"items" binding:"required,dive"`
}

type NewClientOrderItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (input *NewClientOrder) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Client](ctx, businessId, input.ClientId); err != nil {
		return errors.New("client not found")
	}
	if len(input.Items) == 0 {
		return errors.New("order needs at least one item")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return errors.New("item unit price cannot be negative")
		}
	}
	return nil
}

// CreateClientOrder records the order as Pending; stock is untouched until
// the order is converted into an invoice.
func CreateClientOrder(ctx context.Context, input *NewClientOrder) (*ClientOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	client, err := utils.FetchModel[Client](ctx, businessId, input.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}

	items := make([]ClientOrderItem, 0, len(input.Items))
	totalAmount := decimal.Zero
	for _, item := range input.Items {
		product, err := utils.FetchModel[Product](ctx, businessId, item.ProductId)
		if err != nil {
			return nil, fmt.Errorf("product %d not found", item.ProductId)
		}
		total := item.Quantity.Mul(item.UnitPrice)
		items = append(items, ClientOrderItem{
			ProductId:   product.ID,
			ProductName: product.Name,
			Reference:   product.Reference,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       total,
		})
		totalAmount = totalAmount.Add(total)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	number, seqNo, err := AllocateDocumentNumber(tx, businessId, ModuleClientOrder)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	order := ClientOrder{
		BusinessId:  businessId,
		ClientId:    client.ID,
		ClientName:  client.Name,
		SequenceNo:  seqNo,
		OrderNumber: number,
		Date:        input.Date,
		Items:       items,
		TotalAmount: totalAmount,
		Status:      ClientOrderStatusPending,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// convertItemsToInvoiceItems maps order or quote lines into invoice lines,
// snapshotting the purchase cost from the current product record.
func convertItemsToInvoiceItems(tx *gorm.DB, businessId string, productIds []int,
	quantities []decimal.Decimal, unitPrices []decimal.Decimal) ([]InvoiceItem, error) {

	items := make([]InvoiceItem, 0, len(productIds))
	for i, productId := range productIds {
		var product Product
		if err := tx.Where("business_id = ?", businessId).First(&product, productId).Error; err != nil {
			return nil, fmt.Errorf("product %d not found", productId)
		}
		items = append(items, InvoiceItem{
			ProductId:     product.ID,
			ProductName:   product.Name,
			Reference:     product.Reference,
			Quantity:      quantities[i],
			UnitPrice:     unitPrices[i],
			Total:         quantities[i].Mul(unitPrices[i]),
			PurchasePrice: product.PurchasePrice,
		})
	}
	return items, nil
}

// ConvertClientOrderToInvoice turns a Pending order into a new invoice,
// decrementing stock for the converted items; the conversion fires once.
func ConvertClientOrderToInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapConvertOrder); err != nil {
		return nil, err
	}
	order, err := utils.FetchModel[ClientOrder](ctx, businessId, id, "Items")
	if err != nil {
		return nil, errors.New("order not found")
	}
	if order.Status != ClientOrderStatusPending {
		return nil, stateErrorf("order %s is %s and cannot be converted", order.OrderNumber, string(order.Status))
	}
	client, err := utils.FetchModel[Client](ctx, businessId, order.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}

	release, err := utils.BusinessLock(ctx, businessId, "stockLock", "clientOrder.go", "ConvertClientOrderToInvoice")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	productIds := make([]int, len(order.Items))
	quantities := make([]decimal.Decimal, len(order.Items))
	unitPrices := make([]decimal.Decimal, len(order.Items))
	for i, item := range order.Items {
		productIds[i] = item.ProductId
		quantities[i] = item.Quantity
		unitPrices[i] = item.UnitPrice
	}
	items, err := convertItemsToInvoiceItems(tx, businessId, productIds, quantities, unitPrices)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	invoice, err := persistNewInvoice(tx, businessId, client, items,
		order.Date, order.Date, decimal.Zero, decimal.Zero, decimal.Zero, order.ID, 0)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	order.Status = ClientOrderStatusProcessed
	order.InvoiceId = invoice.ID
	if err := tx.Omit("Items").Save(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return invoice, nil
}

// CancelClientOrder has no stock effect; only Pending orders can be
// cancelled.
func CancelClientOrder(ctx context.Context, id int) (*ClientOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	order, err := utils.FetchModel[ClientOrder](ctx, businessId, id)
	if err != nil {
		return nil, errors.New("order not found")
	}
	if order.Status != ClientOrderStatusPending {
		return nil, stateErrorf("order %s is %s and cannot be cancelled", order.OrderNumber, string(order.Status))
	}

	db := config.GetDB()
	order.Status = ClientOrderStatusCancelled
	if err := db.WithContext(ctx).Omit("Items").Save(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func GetClientOrder(ctx context.Context, id int) (*ClientOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ClientOrder](ctx, businessId, id, "Items")
}

func GetClientOrders(ctx context.Context, clientId *int) ([]*ClientOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if clientId != nil && *clientId > 0 {
		dbCtx = dbCtx.Where("client_id = ?", *clientId)
	}
	var results []*ClientOrder
	if err := dbCtx.Preload("Items").Order("date desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
