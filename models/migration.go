package models

import (
	"github.com/atlasgestion/gestion_backend/config"
)

// MigrateTable creates/updates the schema for every model.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Client{},
		&Supplier{},
		&Product{},
		&Expense{},
		&NumberSeries{},
		&Invoice{},
		&InvoiceItem{},
		&InvoicePayment{},
		&Settlement{},
		&SettlementAllocation{},
		&Purchase{},
		&PurchaseItem{},
		&ClientOrder{},
		&ClientOrderItem{},
		&Quote{},
		&QuoteItem{},
	)
	if err != nil {
		panic(err)
	}
}
