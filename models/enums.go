package models

import (
	"errors"
	"strings"
)

type UserRole string

const (
	UserRoleAdmin  UserRole = "A"
	UserRoleOwner  UserRole = "O"
	UserRoleCustom UserRole = "C"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleAdmin || r == UserRoleOwner || r == UserRoleCustom
}

// Privileged roles bypass role module checks.
func (r UserRole) Privileged() bool {
	return r == UserRoleAdmin || r == UserRoleOwner
}

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "Pending"
	ApprovalStatusApproved ApprovalStatus = "Approved"
	ApprovalStatusRejected ApprovalStatus = "Rejected"
)

type ChallanStatus string

const (
	ChallanStatusOpen              ChallanStatus = "Open"
	ChallanStatusPartiallyReturned ChallanStatus = "PartiallyReturned"
	ChallanStatusReturned          ChallanStatus = "Returned"
	ChallanStatusCancelled         ChallanStatus = "Cancelled"
)

// Active challans still hold stock.
func (s ChallanStatus) Active() bool {
	return s == ChallanStatusOpen || s == ChallanStatusPartiallyReturned
}

func ParseChallanStatus(s string) (ChallanStatus, error) {
	for _, v := range []ChallanStatus{ChallanStatusOpen, ChallanStatusPartiallyReturned, ChallanStatusReturned, ChallanStatusCancelled} {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", errors.New("invalid challan status")
}

type MovementType string

const (
	MovementTypeOpening    MovementType = "Opening"
	MovementTypeAdjustment MovementType = "Adjustment"
	MovementTypeRentOut    MovementType = "RentOut"
	MovementTypeReturn     MovementType = "Return"
	MovementTypeLost       MovementType = "Lost"
)

type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "Cash"
	PaymentModeBank   PaymentMode = "Bank"
	PaymentModeUPI    PaymentMode = "UPI"
	PaymentModeCheque PaymentMode = "Cheque"
)

var PaymentModes = []PaymentMode{PaymentModeCash, PaymentModeBank, PaymentModeUPI, PaymentModeCheque}

// ParsePaymentMode is case-insensitive and accepts a few spreadsheet spellings.
func ParsePaymentMode(s string) (PaymentMode, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "cash":
		return PaymentModeCash, nil
	case "bank", "bank transfer", "neft", "rtgs", "imps":
		return PaymentModeBank, nil
	case "upi":
		return PaymentModeUPI, nil
	case "cheque", "check", "chq":
		return PaymentModeCheque, nil
	}
	return "", errors.New("invalid payment mode")
}

// Permission modules. Role modules may only name these.
const (
	ModuleInventory = "Inventory"
	ModuleChallan   = "Challan"
	ModulePayment   = "Payment"
	ModulePettyCash = "PettyCash"
	ModuleClient    = "Client"
	ModuleReport    = "Report"
	ModuleImport    = "Import"
	ModuleAccess    = "Access"
)

var Modules = []string{ModuleInventory, ModuleChallan, ModulePayment, ModulePettyCash, ModuleClient, ModuleReport, ModuleImport, ModuleAccess}

const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var Actions = []string{ActionRead, ActionCreate, ActionUpdate, ActionDelete}

// history action types
const (
	HistoryActionCreate = "CREATE"
	HistoryActionUpdate = "UPDATE"
	HistoryActionDelete = "DELETE"
	HistoryActionReturn = "RETURN"
	HistoryActionCancel = "CANCEL"
	HistoryActionImport = "IMPORT"
)

// reference types shared by history, documents, stock movements and events
const (
	ReferenceTypeBusiness  = "Business"
	ReferenceTypeUser      = "User"
	ReferenceTypeRole      = "Role"
	ReferenceTypeClient    = "Client"
	ReferenceTypeItem      = "InventoryItem"
	ReferenceTypeChallan   = "Challan"
	ReferenceTypePayment   = "Payment"
	ReferenceTypePettyCash = "PettyCash"
	ReferenceTypeImportJob = "ImportJob"
)

// domain event types written to the outbox
const (
	EventChallanCreated   = "challan.created"
	EventChallanUpdated   = "challan.updated"
	EventChallanReturned  = "challan.returned"
	EventChallanCancelled = "challan.cancelled"
	EventPaymentReceived  = "payment.received"
	EventPaymentUpdated   = "payment.updated"
	EventPaymentDeleted   = "payment.deleted"
	EventPettyCashSaved   = "pettycash.saved"
	EventPettyCashDeleted = "pettycash.deleted"
	EventStockAdjusted    = "inventory.adjusted"
	EventClientChanged    = "client.changed"
	EventImportCompleted  = "import.completed"
)
