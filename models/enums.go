package models

import "fmt"

type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "Unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "Partially Paid"
	InvoiceStatusPaid          InvoiceStatus = "Paid"
	InvoiceStatusCancelled     InvoiceStatus = "Cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "Cash"
	PaymentMethodTransfer PaymentMethod = "Transfer"
	PaymentMethodCheck    PaymentMethod = "Check"
	PaymentMethodOther    PaymentMethod = "Other"
)

func (m PaymentMethod) Validate() error {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCheck, PaymentMethodOther:
		return nil
	}
	return fmt.Errorf("invalid payment method: %s", string(m))
}

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "Pending"
	PurchaseStatusReceived  PurchaseStatus = "Received"
	PurchaseStatusCancelled PurchaseStatus = "Cancelled"
)

type ClientOrderStatus string

const (
	ClientOrderStatusPending   ClientOrderStatus = "Pending"
	ClientOrderStatusProcessed ClientOrderStatus = "Processed"
	ClientOrderStatusCancelled ClientOrderStatus = "Cancelled"
)

type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "Draft"
	QuoteStatusSent     QuoteStatus = "Sent"
	QuoteStatusAccepted QuoteStatus = "Accepted"
	QuoteStatusDeclined QuoteStatus = "Declined"
)

func (s QuoteStatus) Validate() error {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusDeclined:
		return nil
	}
	return fmt.Errorf("invalid quote status: %s", string(s))
}

// Module names used by the number series (document numbering).
const (
	ModuleInvoice     = "Invoice"
	ModulePurchase    = "Purchase"
	ModuleClientOrder = "ClientOrder"
	ModuleQuote       = "Quote"
)
