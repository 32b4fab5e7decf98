package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finvault/corebank/internal/audit"
	"github.com/finvault/corebank/internal/config"
	"github.com/finvault/corebank/internal/database"
	"github.com/finvault/corebank/internal/models"
)

// ErrEnvironmentMismatch indicates a cross-environment status update
// attempt. The update is rejected and logged, never silently applied.
var ErrEnvironmentMismatch = errors.New("environment mismatch")

// Request is a transaction submission from an external collaborator.
type Request struct {
	Type               models.TransactionType `json:"type" validate:"required"`
	Account            string                 `json:"account" validate:"required"`
	DestinationAccount string                 `json:"destinationAccount,omitempty"`
	Amount             string                 `json:"amount" validate:"required"`
	Currency           string                 `json:"currency,omitempty"`
	Details            string                 `json:"details,omitempty"`
}

// Result is the synchronous outcome of Process. Err carries the typed
// failure when Status is Failed.
type Result struct {
	Status           models.TransactionStatus `json:"status"`
	TransactionID    string                   `json:"transactionId,omitempty"`
	AppliedAmount    decimal.Decimal          `json:"appliedAmount"`
	OriginalAmount   *decimal.Decimal         `json:"originalAmount,omitempty"`
	RequiresApproval bool                     `json:"requiresApproval"`
	Err              error                    `json:"-"`
}

// Processor is the business-facing entry point of the transactional
// core: it validates requests, applies environment policy, generates
// collision-resistant ids, persists records through the unit-of-work
// manager and keeps the file ledger current.
type Processor struct {
	env       config.Environment
	manager   *database.Manager
	ledger    *audit.Ledger
	notifier  Notifier
	validator *ValidationHelper
}

// NewProcessor wires a processor for one environment.
func NewProcessor(env config.Environment, manager *database.Manager, ledger *audit.Ledger, notifier Notifier) *Processor {
	return &Processor{
		env:       env,
		manager:   manager,
		ledger:    ledger,
		notifier:  notifier,
		validator: NewValidationHelper(),
	}
}

// Process validates, applies policy, persists and logs one transaction.
// Validation failures are side-effect free; once a record is built, a
// ledger artifact and batch row are written regardless of outcome.
func (p *Processor) Process(ctx context.Context, req Request) Result {
	rec, err := p.buildRecord(req)
	if err != nil {
		log.Printf("[PROCESSOR] rejected request for account %s: %v", req.Account, err)
		return Result{Status: models.StatusFailed, Err: err}
	}

	var procErr error
	switch rec.Type {
	case models.TypeDeposit:
		procErr = p.processDeposit(ctx, rec)
	case models.TypeWithdrawal:
		procErr = p.processWithdrawal(ctx, rec)
	case models.TypeTransfer:
		procErr = p.processTransfer(ctx, rec)
	}

	if procErr != nil {
		rec.Status = models.StatusFailed
		if rec.Details == "" {
			rec.Details = procErr.Error()
		}
		log.Printf("[PROCESSOR] transaction %s failed: %v", rec.ID, procErr)
	} else {
		rec.Status = models.StatusSuccess
	}
	rec.UpdatedAt = time.Now().UTC()

	p.writeLedger(rec)
	go p.notify(rec)

	return Result{
		Status:           rec.Status,
		TransactionID:    rec.ID,
		AppliedAmount:    rec.Amount,
		OriginalAmount:   rec.OriginalAmount,
		RequiresApproval: rec.RequiresApproval,
		Err:              procErr,
	}
}

// UpdateStatus applies a forward status transition to a stored record.
// A record owned by a different environment is rejected with
// ErrEnvironmentMismatch and left untouched.
func (p *Processor) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, outbound bool, details string) error {
	err := p.manager.Run(ctx, func(tx *sql.Tx) error {
		rec, err := fetchTransactionForUpdate(tx, id)
		if err != nil {
			return err
		}
		if rec.EnvironmentTag != p.env.Name {
			return fmt.Errorf("%w: record %s belongs to %q, processor runs in %q",
				ErrEnvironmentMismatch, id, rec.EnvironmentTag, p.env.Name)
		}
		if !rec.Status.CanTransitionTo(status) {
			return fmt.Errorf("invalid status transition %s -> %s for %s", rec.Status, status, id)
		}
		return updateTransactionStatus(tx, id, status, details, p.env.Name, time.Now().UTC())
	})
	direction := audit.Inbound
	if outbound {
		direction = audit.Outbound
	}
	if err != nil {
		log.Printf("[PROCESSOR] status update for %s (%s) to %s rejected: %v", id, direction, status, err)
		return err
	}
	log.Printf("[PROCESSOR] transaction %s (%s) moved to %s", id, direction, status)
	return nil
}

// AccountBalance reads an account balance through the unit of work.
// Exposed for collaborators that need an ad-hoc consistent read.
func (p *Processor) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := p.manager.Run(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRow(`SELECT balance::text FROM accounts WHERE account_id = $1`, accountID).Scan(&raw)
		if err == sql.ErrNoRows {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		balance, err = decimal.NewFromString(raw)
		return err
	})
	return balance, err
}

// buildRecord validates the request and applies environment policy.
// No side effects happen before this returns successfully.
func (p *Processor) buildRecord(req Request) (*models.TransactionRecord, error) {
	if err := p.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if !req.Type.IsValid() {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", req.Type)}
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return nil, &ValidationError{Field: "amount", Message: "amount must be numeric"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if req.Type == models.TypeTransfer && req.DestinationAccount == "" {
		return nil, &ValidationError{Field: "destinationAccount", Message: "transfers require a destination account"}
	}
	if req.Type != models.TypeTransfer && req.DestinationAccount != "" {
		return nil, &ValidationError{Field: "destinationAccount", Message: "only transfers carry a destination account"}
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}

	now := time.Now().UTC()
	rec := &models.TransactionRecord{
		ID:                 p.generateID(now),
		Type:               req.Type,
		Amount:             amount,
		Currency:           currency,
		Status:             models.StatusPending,
		SourceAccount:      req.Account,
		DestinationAccount: req.DestinationAccount,
		EnvironmentTag:     p.env.Name,
		ApprovalStatus:     models.ApprovalNone,
		Details:            req.Details,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// Policy: over-ceiling amounts are capped, not rejected, keeping
	// non-production environments safe by default. The requested value
	// is retained for audit.
	if ceiling, ok := p.env.Ceiling(); ok && amount.GreaterThan(ceiling) {
		original := amount
		rec.OriginalAmount = &original
		rec.Amount = ceiling
		log.Printf("[PROCESSOR] amount %s capped to %s ceiling %s", original, p.env.Name, ceiling)
	}
	if !p.env.IsProduction() {
		rec.RequiresApproval = true
		rec.ApprovalStatus = models.ApprovalPending
	}
	return rec, nil
}

// generateID combines a timestamp component with a random suffix.
// Non-production ids carry the environment name as a prefix so they are
// visually distinguishable from production ids.
func (p *Processor) generateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	id := fmt.Sprintf("TXN-%s-%s", now.Format("20060102150405"), strings.ToUpper(suffix))
	if !p.env.IsProduction() {
		id = strings.ToUpper(p.env.Name) + "-" + id
	}
	return id
}

func (p *Processor) processDeposit(ctx context.Context, rec *models.TransactionRecord) error {
	return p.manager.Run(ctx, func(tx *sql.Tx) error {
		rec.Status = models.StatusPending
		balance, err := lockAccountBalance(tx, rec.SourceAccount)
		if err != nil {
			return err
		}
		if err := updateAccountBalance(tx, rec.SourceAccount, balance.Add(rec.Amount)); err != nil {
			return err
		}
		rec.Status = models.StatusSuccess
		return insertTransaction(tx, rec)
	})
}

func (p *Processor) processWithdrawal(ctx context.Context, rec *models.TransactionRecord) error {
	var insufficient bool
	err := p.manager.Run(ctx, func(tx *sql.Tx) error {
		rec.Status = models.StatusPending
		rec.Details = ""
		insufficient = false

		balance, err := lockAccountBalance(tx, rec.SourceAccount)
		if err != nil {
			return err
		}
		if balance.LessThan(rec.Amount) {
			// Declines are committed as Failed rows so the record of
			// the attempt survives.
			insufficient = true
			rec.Status = models.StatusFailed
			rec.Details = ErrInsufficientBalance.Error()
			return insertTransaction(tx, rec)
		}
		if err := updateAccountBalance(tx, rec.SourceAccount, balance.Sub(rec.Amount)); err != nil {
			return err
		}
		rec.Status = models.StatusSuccess
		return insertTransaction(tx, rec)
	})
	if err != nil {
		return err
	}
	if insufficient {
		return ErrInsufficientBalance
	}
	return nil
}

func (p *Processor) processTransfer(ctx context.Context, rec *models.TransactionRecord) error {
	var insufficient bool
	err := p.manager.Run(ctx, func(tx *sql.Tx) error {
		rec.Status = models.StatusPending
		rec.Details = ""
		insufficient = false

		// Lock accounts in consistent order to prevent deadlocks.
		first, second := rec.SourceAccount, rec.DestinationAccount
		if first > second {
			first, second = second, first
		}
		firstBal, err := lockAccountBalance(tx, first)
		if err != nil {
			return err
		}
		secondBal, err := lockAccountBalance(tx, second)
		if err != nil {
			return err
		}
		sourceBal, destBal := firstBal, secondBal
		if first != rec.SourceAccount {
			sourceBal, destBal = secondBal, firstBal
		}

		if sourceBal.LessThan(rec.Amount) {
			insufficient = true
			rec.Status = models.StatusFailed
			rec.Details = ErrInsufficientBalance.Error()
			return insertTransaction(tx, rec)
		}
		if err := updateAccountBalance(tx, rec.SourceAccount, sourceBal.Sub(rec.Amount)); err != nil {
			return err
		}
		if err := updateAccountBalance(tx, rec.DestinationAccount, destBal.Add(rec.Amount)); err != nil {
			return err
		}
		rec.Status = models.StatusSuccess
		return insertTransaction(tx, rec)
	})
	if err != nil {
		return err
	}
	if insufficient {
		return ErrInsufficientBalance
	}
	return nil
}

// writeLedger appends the JSON artifact and batch CSV row. Ledger
// failures are logged, never surfaced, so audit-trail latency cannot
// fail a committed transaction.
func (p *Processor) writeLedger(rec *models.TransactionRecord) {
	d := p.direction(rec.Type)
	if err := p.ledger.WriteRecord(rec, d); err != nil {
		log.Printf("[PROCESSOR] ledger write failed for %s: %v", rec.ID, err)
	}
	if err := p.ledger.AppendBatchRow(rec, d); err != nil {
		log.Printf("[PROCESSOR] batch append failed for %s: %v", rec.ID, err)
	}
}

func (p *Processor) direction(t models.TransactionType) audit.Direction {
	if t == models.TypeDeposit {
		return audit.Inbound
	}
	return audit.Outbound
}

func (p *Processor) notify(rec *models.TransactionRecord) {
	if p.notifier == nil {
		return
	}
	summary := fmt.Sprintf("%s %s %s on account %s: %s",
		rec.Type, rec.Amount, rec.Currency, rec.SourceAccount, rec.Status)
	p.notifier.Notify(context.Background(), rec.ID, summary)
}
