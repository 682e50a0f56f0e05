package models

// CentralOrgId is the ledger scope of the central warehouse. Organization
// scopes are user ids rendered as strings; this sentinel never collides
// with them.
const CentralOrgId = "admin"

// DefaultVariant keys variant-less products into the ledger.
const DefaultVariant = "default"

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOrg   UserRole = "O"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleAdmin || r == UserRoleOrg
}

type TransactionType string

const (
	TransactionTypeIn  TransactionType = "IN"
	TransactionTypeOut TransactionType = "OUT"
)

func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIn || t == TransactionTypeOut
}

type RequisitionStatus string

const (
	RequisitionStatusPending  RequisitionStatus = "PENDING"
	RequisitionStatusApproved RequisitionStatus = "APPROVED"
	RequisitionStatusRejected RequisitionStatus = "REJECTED"
)

func (s RequisitionStatus) IsValid() bool {
	switch s {
	case RequisitionStatusPending, RequisitionStatusApproved, RequisitionStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is allowed.
func (s RequisitionStatus) IsTerminal() bool {
	return s == RequisitionStatusApproved || s == RequisitionStatusRejected
}

// CanTransitionTo encodes the whole status machine:
// PENDING -> APPROVED | REJECTED, nothing else.
func (s RequisitionStatus) CanTransitionTo(next RequisitionStatus) bool {
	if s != RequisitionStatusPending {
		return false
	}
	return next == RequisitionStatusApproved || next == RequisitionStatusRejected
}

// NormalizeVariant maps an absent variant onto the ledger sentinel.
func NormalizeVariant(variant string) string {
	if variant == "" {
		return DefaultVariant
	}
	return variant
}
