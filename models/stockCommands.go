package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Explicit, command-style stock mutations. Every document write path calls
// these inside its own DB transaction and holds the per-business stock lock
// (utils.BusinessLock) from before the transaction until after commit.

// sortedProductIds fixes the write order: ascending product id, so
// concurrent transactions touch product rows in the same sequence.
func sortedProductIds(quantities map[int]decimal.Decimal) []int {
	ids := make([]int, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ApplyInvoiceStockDecrement checks availability for every line and then
// decrements product stock. The whole call fails on the first shortage,
// before any write.
func ApplyInvoiceStockDecrement(tx *gorm.DB, businessId string, items []InvoiceItem) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}

	// quantities per product, an invoice may repeat a product
	needed := make(map[int]decimal.Decimal)
	for _, item := range items {
		needed[item.ProductId] = needed[item.ProductId].Add(item.Quantity)
	}
	productIds := sortedProductIds(needed)

	products := make(map[int]*Product, len(needed))
	for _, productId := range productIds {
		qty := needed[productId]
		var product Product
		if err := tx.Where("business_id = ?", businessId).First(&product, productId).Error; err != nil {
			return fmt.Errorf("product %d not found", productId)
		}
		if qty.GreaterThan(product.QuantityInStock) {
			return fmt.Errorf("insufficient stock for %s: have %s, need %s",
				product.Name, product.QuantityInStock.String(), qty.String())
		}
		products[productId] = &product
	}

	for _, productId := range productIds {
		product := products[productId]
		product.QuantityInStock = product.QuantityInStock.Sub(needed[productId])
		if err := tx.Save(product).Error; err != nil {
			return err
		}
	}
	return nil
}

// RestoreInvoiceStock adds every line's quantity back, used by cancel and
// by edit (restore then re-apply against the new item list).
func RestoreInvoiceStock(tx *gorm.DB, businessId string, items []InvoiceItem) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	restored := make(map[int]decimal.Decimal)
	for _, item := range items {
		restored[item.ProductId] = restored[item.ProductId].Add(item.Quantity)
	}
	for _, productId := range sortedProductIds(restored) {
		var product Product
		if err := tx.Where("business_id = ?", businessId).First(&product, productId).Error; err != nil {
			return fmt.Errorf("product %d not found", productId)
		}
		product.QuantityInStock = product.QuantityInStock.Add(restored[productId])
		if err := tx.Save(&product).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReceivePurchaseStock increases stock for every purchase line and folds the
// landed cost of the received batch into each product's weighted-average
// purchase price.
//
// The landed cost is allocated uniformly per unit across the whole purchase,
// whatever the product: landedCostPerUnit = totalAmount / sum(quantities).
func ReceivePurchaseStock(tx *gorm.DB, businessId string, purchase *Purchase) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if purchase == nil {
		return fmt.Errorf("purchase is nil")
	}

	totalQty := decimal.Zero
	for _, item := range purchase.Items {
		totalQty = totalQty.Add(item.Quantity)
	}

	landedCostPerUnit := decimal.Zero
	if totalQty.IsPositive() {
		landedCostPerUnit = purchase.TotalAmount.DivRound(totalQty, 4)
	}

	received := make(map[int]decimal.Decimal)
	for _, item := range purchase.Items {
		received[item.ProductId] = received[item.ProductId].Add(item.Quantity)
	}

	for _, productId := range sortedProductIds(received) {
		qty := received[productId]
		var product Product
		if err := tx.Where("business_id = ?", businessId).First(&product, productId).Error; err != nil {
			return fmt.Errorf("product %d not found", productId)
		}

		newQty := product.QuantityInStock.Add(qty)
		if newQty.IsPositive() && landedCostPerUnit.IsPositive() {
			oldValue := product.QuantityInStock.Mul(product.PurchasePrice)
			batchValue := landedCostPerUnit.Mul(qty)
			newAvg := oldValue.Add(batchValue).DivRound(newQty, 4)
			if newAvg.IsPositive() {
				product.PurchasePrice = newAvg
			}
			// otherwise keep the previous purchase price
		}
		product.QuantityInStock = newQty
		if err := tx.Save(&product).Error; err != nil {
			return err
		}
	}
	return nil
}
