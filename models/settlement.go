package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement records one payment applied across one or more outstanding
// invoices of a client, with its per-invoice split.
type Settlement struct {
	ID          int                    `gorm:"primary_key" json:"id"`
	BusinessId  string                 `gorm:"index;not null" json:"business_id"`
	ClientId    int                    `gorm:"index;not null" json:"client_id"`
	ClientName  string                 `gorm:"size:255" json:"client_name"`
	Reference   string                 `gorm:"size:64" json:"reference"`
	Amount      decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Date        time.Time              `gorm:"not null" json:"date"`
	Method      PaymentMethod          `gorm:"size:50;not null" json:"method"`
	Notes       string                 `gorm:"type:text" json:"notes"`
	Allocations []SettlementAllocation `gorm:"foreignKey:SettlementId" json:"allocations"`
	CreatedAt   time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

type SettlementAllocation struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SettlementId  int             `gorm:"index;not null" json:"settlement_id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id"`
	InvoiceNumber string          `gorm:"size:255" json:"invoice_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSettlement struct {
	ClientId   int             `json:"client_id" binding:"required" validate:"required"`
	InvoiceIds []int           `json:"invoice_ids" binding:"required" validate:"required,min=1"`
	Amount     decimal.Decimal `json:"amount" binding:"required" validate:"required"`
	Date       time.Time       `json:"date" binding:"required" validate:"required"`
	Method     PaymentMethod   `json:"method" binding:"required" validate:"required"`
	Notes      string          `json:"notes"`
}

// OldestDueFirst is the allocation order: ascending invoice date, id as the
// tie break. The only built-in policy; alternatives would slot in here.
func OldestDueFirst(invoices []*Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		if invoices[i].Date.Equal(invoices[j].Date) {
			return invoices[i].ID < invoices[j].ID
		}
		return invoices[i].Date.Before(invoices[j].Date)
	})
}

func (input *NewSettlement) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateStruct(input); err != nil {
		return errors.New("settlement input is incomplete")
	}
	if !input.Amount.IsPositive() {
		return errors.New("payment amount must be positive")
	}
	if err := input.Method.Validate(); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Client](ctx, businessId, input.ClientId); err != nil {
		return errors.New("client not found")
	}
	if err := utils.ValidateResourcesId[Invoice, int](ctx, businessId, input.InvoiceIds); err != nil {
		return err
	}
	return nil
}

// CreateSettlement allocates one payment across the selected invoices,
// oldest invoice first. All-or-nothing: the amount must fit within the
// combined remaining balances (0.001 tolerance) or nothing is written.
func CreateSettlement(ctx context.Context, input *NewSettlement) (*Settlement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.Authorize(ctx, utils.CapSettleInvoices); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	client, err := utils.FetchModel[Client](ctx, businessId, input.ClientId)
	if err != nil {
		return nil, errors.New("client not found")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	invoices := make([]*Invoice, 0, len(input.InvoiceIds))
	totalDue := decimal.Zero
	for _, invoiceId := range utils.UniqueSlice(input.InvoiceIds) {
		var invoice Invoice
		if err := tx.Where("business_id = ?", businessId).First(&invoice, invoiceId).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("invoice %d not found", invoiceId)
		}
		if invoice.ClientId != input.ClientId {
			tx.Rollback()
			return nil, fmt.Errorf("invoice %s does not belong to the selected client", invoice.InvoiceNumber)
		}
		if invoice.Status != InvoiceStatusUnpaid && invoice.Status != InvoiceStatusPartiallyPaid {
			tx.Rollback()
			return nil, fmt.Errorf("invoice %s is %s and cannot receive payments", invoice.InvoiceNumber, string(invoice.Status))
		}
		totalDue = totalDue.Add(invoice.RemainingBalance())
		invoices = append(invoices, &invoice)
	}

	if input.Amount.GreaterThan(totalDue.Add(utils.Epsilon)) {
		tx.Rollback()
		return nil, fmt.Errorf("payment of %s exceeds the remaining balance of the selected invoices (%s)",
			input.Amount.String(), totalDue.String())
	}

	OldestDueFirst(invoices)

	settlement := Settlement{
		BusinessId: businessId,
		ClientId:   client.ID,
		ClientName: client.Name,
		Reference:  uuid.NewString(),
		Amount:     input.Amount,
		Date:       input.Date,
		Method:     input.Method,
		Notes:      input.Notes,
	}
	if err := tx.Create(&settlement).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	amountToApply := input.Amount
	allocations := make([]SettlementAllocation, 0, len(invoices))
	for _, invoice := range invoices {
		if !amountToApply.IsPositive() {
			break
		}
		due := invoice.RemainingBalance()
		applied := decimal.Min(amountToApply, due)
		if !applied.IsPositive() {
			continue
		}

		payment := InvoicePayment{
			InvoiceId:    invoice.ID,
			SettlementId: settlement.ID,
			PaymentRef:   uuid.NewString(),
			Date:         input.Date,
			Amount:       applied,
			Method:       input.Method,
			Notes:        input.Notes,
		}
		if err := tx.Create(&payment).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		invoice.AmountPaid = invoice.AmountPaid.Add(applied)
		invoice.refreshStatus()
		if err := tx.Omit("Items", "Payments").Save(invoice).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		allocations = append(allocations, SettlementAllocation{
			SettlementId:  settlement.ID,
			InvoiceId:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			Amount:        applied,
		})
		amountToApply = amountToApply.Sub(applied)
	}

	if len(allocations) > 0 {
		if err := tx.Create(&allocations).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	settlement.Allocations = allocations

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func GetSettlement(ctx context.Context, id int) (*Settlement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Settlement](ctx, businessId, id, "Allocations")
}

func GetSettlements(ctx context.Context, clientId *int) ([]*Settlement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if clientId != nil && *clientId > 0 {
		dbCtx = dbCtx.Where("client_id = ?", *clientId)
	}
	var results []*Settlement
	if err := dbCtx.Preload("Allocations").Order("date desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
