package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSeries backs the sequential, format-configurable document numbers
// (invoice, purchase, order, quote) per business and module.
type NumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index:idx_series_business_module,unique;not null" json:"business_id"`
	ModuleName string    `gorm:"index:idx_series_business_module,unique;size:50;not null" json:"module_name"`
	Prefix     string    `gorm:"size:10" json:"prefix"`
	NextNumber int64     `gorm:"default:1" json:"next_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var defaultPrefixes = map[string]string{
	ModuleInvoice:     "INV-",
	ModulePurchase:    "PUR-",
	ModuleClientOrder: "ORD-",
	ModuleQuote:       "DEV-",
}

// AllocateDocumentNumber hands out the next sequential number for a module,
// inside the caller's transaction so a rolled-back document releases no gap
// observable by a committed one.
func AllocateDocumentNumber(tx *gorm.DB, businessId string, moduleName string) (string, int64, error) {
	if tx == nil {
		return "", 0, errors.New("tx is nil")
	}

	query := tx
	// Row lock only on MySQL; sqlite serializes writers on its own.
	if tx.Dialector.Name() == "mysql" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var series NumberSeries
	err := query.
		Where("business_id = ? AND module_name = ?", businessId, moduleName).
		First(&series).Error
	if err == gorm.ErrRecordNotFound {
		series = NumberSeries{
			BusinessId: businessId,
			ModuleName: moduleName,
			Prefix:     defaultPrefixes[moduleName],
			NextNumber: 1,
		}
		if err := tx.Create(&series).Error; err != nil {
			return "", 0, err
		}
	} else if err != nil {
		return "", 0, err
	}

	seqNo := series.NextNumber
	number := fmt.Sprintf("%s%06d", series.Prefix, seqNo)

	if err := tx.Model(&NumberSeries{}).Where("id = ?", series.ID).
		Update("next_number", seqNo+1).Error; err != nil {
		return "", 0, err
	}
	return number, seqNo, nil
}
