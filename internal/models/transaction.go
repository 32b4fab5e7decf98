package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction request.
type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeTransfer   TransactionType = "TRANSFER"
)

// IsValid reports whether the type is one of the known kinds.
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a transaction record.
// Transitions only move forward; records are closed by status change,
// never deleted.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusSuccess  TransactionStatus = "SUCCESS"
	StatusFailed   TransactionStatus = "FAILED"
	StatusReversed TransactionStatus = "REVERSED"
)

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition. Pending resolves to Success or Failed, and a
// Success may later be Reversed. Everything else is terminal.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSuccess || next == StatusFailed
	case StatusSuccess:
		return next == StatusReversed
	}
	return false
}

// ApprovalStatus tracks the manual-approval workflow applied to
// non-production transactions.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "NONE"
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// TransactionRecord is the persisted form of a processed transaction.
// Amounts are decimal end to end; floating-point currency arithmetic
// is not allowed anywhere in this module.
type TransactionRecord struct {
	ID                 string            `json:"transaction_id" db:"transaction_id"`
	Type               TransactionType   `json:"type" db:"type"`
	Amount             decimal.Decimal   `json:"amount" db:"amount"`
	OriginalAmount     *decimal.Decimal  `json:"original_amount,omitempty" db:"original_amount"`
	Currency           string            `json:"currency" db:"currency"`
	Status             TransactionStatus `json:"status" db:"status"`
	SourceAccount      string            `json:"source_account" db:"source_account"`
	DestinationAccount string            `json:"destination_account,omitempty" db:"destination_account"`
	EnvironmentTag     string            `json:"environment" db:"environment"`
	UpdatedEnvironment string            `json:"updated_environment,omitempty" db:"updated_environment"`
	RequiresApproval   bool              `json:"requires_approval" db:"requires_approval"`
	ApprovalStatus     ApprovalStatus    `json:"approval_status" db:"approval_status"`
	Details            string            `json:"details,omitempty" db:"details"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// Capped reports whether policy reduced the requested amount.
func (r *TransactionRecord) Capped() bool {
	return r.OriginalAmount != nil
}
