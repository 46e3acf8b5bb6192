package utils

import (
	"github.com/shopspring/decimal"
)

// Epsilon is the currency rounding tolerance for paid/total comparisons.
var Epsilon = decimal.NewFromFloat(0.001)

var decimalOneHundred = decimal.NewFromInt(100)

// CalculatePercentage returns base * rate / 100, rounded to 4 places.
func CalculatePercentage(base decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return base.Mul(rate).DivRound(decimalOneHundred, 4)
}

// DocumentTotals holds the monetary breakdown shared by invoices and quotes.
type DocumentTotals struct {
	SubTotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	VatAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	RetenueAmount  decimal.Decimal
	NetAPayer      decimal.Decimal
}

// CalculateDocumentTotals applies discount, VAT and retenue (withholding)
// in that order:
//
//	discountAmount = subTotal * discount%
//	vatAmount      = (subTotal - discountAmount) * vat%
//	totalAmount    = subTotal - discountAmount + vatAmount
//	retenueAmount  = (subTotal - discountAmount) * retenue%
//	netAPayer      = totalAmount - retenueAmount
func CalculateDocumentTotals(subTotal, discount, vat, retenue decimal.Decimal) DocumentTotals {
	discountAmount := CalculatePercentage(subTotal, discount)
	taxable := subTotal.Sub(discountAmount)
	vatAmount := CalculatePercentage(taxable, vat)
	totalAmount := taxable.Add(vatAmount)
	retenueAmount := CalculatePercentage(taxable, retenue)
	return DocumentTotals{
		SubTotal:       subTotal,
		DiscountAmount: discountAmount,
		VatAmount:      vatAmount,
		TotalAmount:    totalAmount,
		RetenueAmount:  retenueAmount,
		NetAPayer:      totalAmount.Sub(retenueAmount),
	}
}
