package models

import (
	"context"
	"errors"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	Name            string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Reference       string          `gorm:"size:100" json:"reference"`
	Category        string          `gorm:"size:100" json:"category"`
	PurchasePrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	QuantityInStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_in_stock"`
	ReorderPoint    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	SafetyStock     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"safety_stock"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name            string          `json:"name" binding:"required"`
	Reference       string          `json:"reference"`
	Category        string          `json:"category"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	QuantityInStock decimal.Decimal `json:"quantity_in_stock"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	SafetyStock     decimal.Decimal `json:"safety_stock"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	if input.Reference != "" {
		if err := utils.ValidateUnique[Product](ctx, businessId, "reference", input.Reference, 0); err != nil {
			return nil, err
		}
	}
	if input.QuantityInStock.IsNegative() {
		return nil, errors.New("quantity in stock cannot be negative")
	}

	product := Product{
		BusinessId:      businessId,
		Name:            input.Name,
		Reference:       input.Reference,
		Category:        input.Category,
		PurchasePrice:   input.PurchasePrice,
		UnitPrice:       input.UnitPrice,
		QuantityInStock: input.QuantityInStock,
		ReorderPoint:    input.ReorderPoint,
		SafetyStock:     input.SafetyStock,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	product, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if input.Reference != "" {
		if err := utils.ValidateUnique[Product](ctx, businessId, "reference", input.Reference, id); err != nil {
			return nil, err
		}
	}

	product.Name = input.Name
	product.Reference = input.Reference
	product.Category = input.Category
	product.PurchasePrice = input.PurchasePrice
	product.UnitPrice = input.UnitPrice
	product.ReorderPoint = input.ReorderPoint
	product.SafetyStock = input.SafetyStock

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return product, nil
}

// administrative delete, no cascades
func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	product, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(product).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Product](businessId)
	return product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Product](ctx, businessId, id)
}

func GetProducts(ctx context.Context) ([]*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchCachedList(businessId, func() ([]*Product, error) {
		return utils.FetchAllModels[Product](ctx, businessId)
	})
}
