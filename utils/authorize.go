package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlasgestion/gestion_backend/config"
)

// Roles, ordered. Every authenticated user carries exactly one.
const (
	RoleMember     = "Member"
	RoleAdmin      = "Admin"
	RoleSuperAdmin = "SuperAdmin"
)

// Capability names one guarded operation. Lifecycle and settlement entry
// points consult Authorize with the matching capability instead of
// sniffing roles inline.
type Capability string

const (
	CapSettleInvoices         Capability = "settlements.create"
	CapCreateInvoice          Capability = "invoices.create"
	CapEditInvoice            Capability = "invoices.edit"
	CapCancelInvoice          Capability = "invoices.cancel"
	CapCreatePurchase         Capability = "purchases.create"
	CapEditPurchase           Capability = "purchases.edit"
	CapReceivePurchase        Capability = "purchases.receive"
	CapCancelPurchase         Capability = "purchases.cancel"
	CapCancelReceivedPurchase Capability = "purchases.cancel_received"
	CapConvertOrder           Capability = "client_orders.convert"
	CapManageQuote            Capability = "quotes.manage"
	CapManageRecords          Capability = "records.manage"
)

var ErrorUnauthorized = errors.New("you are not allowed to perform this action")

// minimumRole maps each capability to the weakest role that may exercise it.
// Anything not listed is Admin-only.
var minimumRole = map[Capability]string{
	CapSettleInvoices:         RoleMember,
	CapCreateInvoice:          RoleMember,
	CapEditInvoice:            RoleMember,
	CapCancelInvoice:          RoleAdmin,
	CapCreatePurchase:         RoleMember,
	CapEditPurchase:           RoleMember,
	CapReceivePurchase:        RoleMember,
	CapCancelPurchase:         RoleAdmin,
	CapCancelReceivedPurchase: RoleSuperAdmin,
	CapConvertOrder:           RoleMember,
	CapManageQuote:            RoleMember,
	CapManageRecords:          RoleMember,
}

var roleRank = map[string]int{
	RoleMember:     1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// Authorize is the single capability checkpoint. The caller's role comes
// from the request context; a missing role means the request never went
// through the auth middleware and is rejected.
func Authorize(ctx context.Context, capability Capability) error {
	role, ok := GetUserRoleFromContext(ctx)
	if !ok || role == "" {
		return ErrorUnauthorized
	}
	need, ok := minimumRole[capability]
	if !ok {
		need = RoleAdmin
	}
	if roleRank[role] < roleRank[need] {
		userId, _ := GetUserIdFromContext(ctx)
		userName, _ := GetUserNameFromContext(ctx)
		config.LogError(config.GetLogger(), "authorize.go", "Authorize", "capability refused",
			fmt.Sprintf("user %d (%s) has role %s, %s requires %s", userId, userName, role, capability, need),
			ErrorUnauthorized)
		return ErrorUnauthorized
	}
	return nil
}
