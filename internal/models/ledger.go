package models

import "time"

// LedgerEntry is the flattened, append-only projection of a
// TransactionRecord written to the file ledger. It is created once per
// transaction and never mutated, so the audit trail survives even when
// the database does not.
type LedgerEntry struct {
	TransactionID      string    `json:"transaction_id"`
	Type               string    `json:"type"`
	Amount             string    `json:"amount"`
	OriginalAmount     string    `json:"original_amount,omitempty"`
	Currency           string    `json:"currency"`
	Status             string    `json:"status"`
	SourceAccount      string    `json:"source_account,omitempty"`
	DestinationAccount string    `json:"destination_account,omitempty"`
	Environment        string    `json:"environment"`
	RequiresApproval   bool      `json:"requires_approval"`
	ApprovalStatus     string    `json:"approval_status"`
	Details            string    `json:"details,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewLedgerEntry flattens a record into its audit projection.
func NewLedgerEntry(rec *TransactionRecord) LedgerEntry {
	entry := LedgerEntry{
		TransactionID:      rec.ID,
		Type:               string(rec.Type),
		Amount:             rec.Amount.String(),
		Currency:           rec.Currency,
		Status:             string(rec.Status),
		SourceAccount:      rec.SourceAccount,
		DestinationAccount: rec.DestinationAccount,
		Environment:        rec.EnvironmentTag,
		RequiresApproval:   rec.RequiresApproval,
		ApprovalStatus:     string(rec.ApprovalStatus),
		Details:            rec.Details,
		Timestamp:          rec.CreatedAt,
	}
	if rec.OriginalAmount != nil {
		entry.OriginalAmount = rec.OriginalAmount.String()
	}
	return entry
}
