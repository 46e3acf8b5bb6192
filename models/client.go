package models

import (
	"context"
	"errors"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/utils"
)

type Client struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email      string    `gorm:"size:255" json:"email"`
	Phone      string    `gorm:"size:50" json:"phone"`
	Address    string    `gorm:"type:text" json:"address"`
	TaxNumber  string    `gorm:"size:100" json:"tax_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	TaxNumber string `json:"tax_number"`
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}

	client := Client{
		BusinessId: businessId,
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Address:    input.Address,
		TaxNumber:  input.TaxNumber,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Client](businessId)
	return &client, nil
}

func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	client, err := utils.FetchModel[Client](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	client.Name = input.Name
	client.Email = input.Email
	client.Phone = input.Phone
	client.Address = input.Address
	client.TaxNumber = input.TaxNumber

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(client).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Client](businessId)
	return client, nil
}

func DeleteClient(ctx context.Context, id int) (*Client, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapManageRecords); err != nil {
		return nil, err
	}
	client, err := utils.FetchModel[Client](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(client).Error; err != nil {
		return nil, err
	}
	_ = utils.InvalidateListCache[Client](businessId)
	return client, nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Client](ctx, businessId, id)
}

func GetClients(ctx context.Context) ([]*Client, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchCachedList(businessId, func() ([]*Client, error) {
		return utils.FetchAllModels[Client](ctx, businessId)
	})
}
