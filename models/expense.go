package models

import (
	"context"
	"errors"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	Category    string          `gorm:"size:100" json:"category"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount" binding:"required"`
	Date        time.Time       `gorm:"not null" json:"date" binding:"required"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Date        time.Time       `json:"date" binding:"required"`
}

func CreateExpense(ctx context.Context, input *NewExpense) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New("expense amount must be positive")
	}

	expense := Expense{
		BusinessId:  businessId,
		Category:    input.Category,
		Description: input.Description,
		Amount:      input.Amount,
		Date:        input.Date,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&expense).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Expense](businessId)
	return &expense, nil
}

func UpdateExpense(ctx context.Context, id int, input *NewExpense) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New("expense amount must be positive")
	}
	expense, err := utils.FetchModel[Expense](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	expense.Category = input.Category
	expense.Description = input.Description
	expense.Amount = input.Amount
	expense.Date = input.Date

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(expense).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Expense](businessId)
	return expense, nil
}

func GetExpense(ctx context.Context, id int) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Expense](ctx, businessId, id)
}

func GetExpenses(ctx context.Context) ([]*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchCachedList(businessId, func() ([]*Expense, error) {
		return utils.FetchAllModels[Expense](ctx, businessId)
	})
}
