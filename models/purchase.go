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

// Purchase tracks cost in aggregate through its four cost components;
// line items carry quantities only.
type Purchase struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"index;not null" json:"business_id"`
	SupplierId        int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	SupplierName      string          `gorm:"size:255" json:"supplier_name"`
	SequenceNo        int64           `gorm:"not null" json:"sequence_no"`
	PurchaseNumber    string          `gorm:"size:255;not null" json:"purchase_number"`
	Date              time.Time       `gorm:"not null" json:"date" binding:"required"`
	Items             []PurchaseItem  `gorm:"foreignKey:PurchaseId" json:"items"`
	PremierVersement  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"premier_versement"`
	DeuxiemeVersement decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deuxieme_versement"`
	TransportCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"transport_cost"`
	OtherFees         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"other_fees"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status            PurchaseStatus  `gorm:"size:50;not null" json:"status"`
	ReceivedAt        *time.Time      `json:"received_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	PurchaseId  int             `gorm:"index;not null" json:"purchase_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	ProductName string          `gorm:"size:255" json:"product_name"`
	Reference   string          `gorm:"size:100" json:"reference"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchase struct {
	SupplierId        int               `json:"supplier_id" binding:"required"`
	Date              time.Time         `json:"date" binding:"required"`
	Items             []NewPurchaseItem `json:"items" binding:"required,dive"`
	PremierVersement  decimal.Decimal   `json:"premier_versement"`
	DeuxiemeVersement decimal.Decimal   `json:"deuxieme_versement"`
	TransportCost     decimal.Decimal   `json:"transport_cost"`
	OtherFees         decimal.Decimal   `json:"other_fees"`
}

type NewPurchaseItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

func (p *NewPurchase) totalAmount() decimal.Decimal {
	return p.PremierVersement.Add(p.DeuxiemeVersement).Add(p.TransportCost).Add(p.OtherFees)
}

func (input *NewPurchase) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return errors.New("supplier not found")
	}
	if len(input.Items) == 0 {
		return errors.New("purchase needs at least one item")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("item quantity must be positive")
		}
	}
	if input.PremierVersement.IsNegative() || input.DeuxiemeVersement.IsNegative() ||
		input.TransportCost.IsNegative() || input.OtherFees.IsNegative() {
		return errors.New("cost components cannot be negative")
	}
	return nil
}

func mapPurchaseItems(ctx context.Context, businessId string, items []NewPurchaseItem) ([]PurchaseItem, error) {
	built := make([]PurchaseItem, 0, len(items))
	for _, item := range items {
		product, err := utils.FetchModel[Product](ctx, businessId, item.ProductId)
		if err != nil {
			return nil, fmt.Errorf("product %d not found", item.ProductId)
		}
		built = append(built, PurchaseItem{
			ProductId:   product.ID,
			ProductName: product.Name,
			Reference:   product.Reference,
			Quantity:    item.Quantity,
		})
	}
	return built, nil
}

// CreatePurchase stores the order as Pending; stock and cost are untouched
// until receipt.
func CreatePurchase(ctx context.Context, input *NewPurchase) (*Purchase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapCreatePurchase); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	supplier, err := utils.FetchModel[Supplier](ctx, businessId, input.SupplierId)
	if err != nil {
		return nil, errors.New("supplier not found")
	}
	items, err := mapPurchaseItems(ctx, businessId, input.Items)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	number, seqNo, err := AllocateDocumentNumber(tx, businessId, ModulePurchase)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	purchase := Purchase{
		BusinessId:        businessId,
		SupplierId:        supplier.ID,
		SupplierName:      supplier.Name,
		SequenceNo:        seqNo,
		PurchaseNumber:    number,
		Date:              input.Date,
		Items:             items,
		PremierVersement:  input.PremierVersement,
		DeuxiemeVersement: input.DeuxiemeVersement,
		TransportCost:     input.TransportCost,
		OtherFees:         input.OtherFees,
		TotalAmount:       input.totalAmount(),
		Status:            PurchaseStatusPending,
	}
	if err := tx.Create(&purchase).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

// UpdatePurchase recomputes the aggregate cost; it never touches stock,
// which only moves on receipt.
func UpdatePurchase(ctx context.Context, id int, input *NewPurchase) (*Purchase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapEditPurchase); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	purchase, err := utils.FetchModel[Purchase](ctx, businessId, id, "Items")
	if err != nil {
		return nil, errors.New("purchase not found")
	}
	if purchase.Status == PurchaseStatusCancelled {
		return nil, stateErrorf("cannot modify a cancelled purchase")
	}
	supplier, err := utils.FetchModel[Supplier](ctx, businessId, input.SupplierId)
	if err != nil {
		return nil, errors.New("supplier not found")
	}
	items, err := mapPurchaseItems(ctx, businessId, input.Items)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	purchase.SupplierId = supplier.ID
	purchase.SupplierName = supplier.Name
	purchase.Date = input.Date
	purchase.PremierVersement = input.PremierVersement
	purchase.DeuxiemeVersement = input.DeuxiemeVersement
	purchase.TransportCost = input.TransportCost
	purchase.OtherFees = input.OtherFees
	purchase.TotalAmount = input.totalAmount()

	if err := tx.Where("purchase_id = ?", purchase.ID).Delete(&PurchaseItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range items {
		items[i].PurchaseId = purchase.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	purchase.Items = items
	if err := tx.Omit("Items").Save(purchase).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return purchase, nil
}

// ReceivePurchase applies the stock and cost effects of a purchase, exactly
// once, on the Pending to Received transition.
func ReceivePurchase(ctx context.Context, id int) (*Purchase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapReceivePurchase); err != nil {
		return nil, err
	}
	purchase, err := utils.FetchModel[Purchase](ctx, businessId, id, "Items")
	if err != nil {
		return nil, errors.New("purchase not found")
	}
	if purchase.Status == PurchaseStatusReceived {
		return nil, stateErrorf("purchase has already been received")
	}
	if purchase.Status == PurchaseStatusCancelled {
		return nil, stateErrorf("cannot receive a cancelled purchase")
	}

	release, err := utils.BusinessLock(ctx, businessId, "stockLock", "purchase.go", "ReceivePurchase")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	if err := ReceivePurchaseStock(tx, businessId, purchase); err != nil {
		tx.Rollback()
		return nil, err
	}
	now := time.Now().UTC()
	purchase.Status = PurchaseStatusReceived
	purchase.ReceivedAt = &now
	if err := tx.Omit("Items").Save(purchase).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return purchase, nil
}

// CancelPurchase never reverses stock or cost effects of a receipt.
// Cancelling after receipt is a financial-record annotation and is
// restricted to SuperAdmin.
func CancelPurchase(ctx context.Context, id int) (*Purchase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	purchase, err := utils.FetchModel[Purchase](ctx, businessId, id)
	if err != nil {
		return nil, errors.New("purchase not found")
	}
	if purchase.Status == PurchaseStatusCancelled {
		return nil, stateErrorf("purchase is already cancelled")
	}
	capability := utils.CapCancelPurchase
	if purchase.Status == PurchaseStatusReceived {
		capability = utils.CapCancelReceivedPurchase
	}
	if err := utils.Authorize(ctx, capability); err != nil {
		return nil, err
	}

	db := config.GetDB()
	purchase.Status = PurchaseStatusCancelled
	if err := db.WithContext(ctx).Omit("Items").Save(purchase).Error; err != nil {
		return nil, err
	}
	return purchase, nil
}

func GetPurchase(ctx context.Context, id int) (*Purchase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Purchase](ctx, businessId, id, "Items")
}

func GetPurchases(ctx context.Context, supplierId *int, status *PurchaseStatus) ([]*Purchase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if supplierId != nil && *supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var results []*Purchase
	if err := dbCtx.Preload("Items").Order("date desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
