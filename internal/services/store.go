package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finvault/corebank/internal/models"
)

var (
	// ErrAccountNotFound indicates the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransactionNotFound indicates no stored record matches the id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInsufficientBalance indicates a debit would overdraw the account.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// lockAccountBalance reads an account balance under FOR UPDATE so
// concurrent balance mutation is serialized by the database, not by
// application locks.
func lockAccountBalance(tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(`
		SELECT balance::text FROM accounts
		WHERE account_id = $1
		FOR UPDATE`, accountID).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance for %s: %w", accountID, err)
	}
	return balance, nil
}

func updateAccountBalance(tx *sql.Tx, accountID string, balance decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE account_id = $2`, balance.String(), accountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func insertTransaction(tx *sql.Tx, rec *models.TransactionRecord) error {
	var originalAmount any
	if rec.OriginalAmount != nil {
		originalAmount = rec.OriginalAmount.String()
	}
	var destination any
	if rec.DestinationAccount != "" {
		destination = rec.DestinationAccount
	}

	_, err := tx.Exec(`
		INSERT INTO transactions
		(transaction_id, type, amount, original_amount, currency, status,
		 source_account, destination_account, environment, requires_approval,
		 approval_status, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, string(rec.Type), rec.Amount.String(), originalAmount,
		rec.Currency, string(rec.Status), rec.SourceAccount, destination,
		rec.EnvironmentTag, rec.RequiresApproval, string(rec.ApprovalStatus),
		rec.Details, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// fetchTransactionForUpdate loads a stored record under FOR UPDATE so a
// status transition is totally ordered with any concurrent update.
func fetchTransactionForUpdate(tx *sql.Tx, id string) (*models.TransactionRecord, error) {
	rec := &models.TransactionRecord{}
	var (
		amountRaw   string
		originalRaw sql.NullString
		destination sql.NullString
		updatedEnv  sql.NullString
		details     sql.NullString
	)
	err := tx.QueryRow(`
		SELECT transaction_id, type, amount::text, original_amount::text,
		       currency, status, source_account, destination_account,
		       environment, updated_environment, requires_approval,
		       approval_status, details, created_at, updated_at
		FROM transactions
		WHERE transaction_id = $1
		FOR UPDATE`, id).Scan(
		&rec.ID, &rec.Type, &amountRaw, &originalRaw, &rec.Currency,
		&rec.Status, &rec.SourceAccount, &destination, &rec.EnvironmentTag,
		&updatedEnv, &rec.RequiresApproval, &rec.ApprovalStatus, &details,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Amount, err = decimal.NewFromString(amountRaw)
	if err != nil {
		return nil, fmt.Errorf("parse amount for %s: %w", id, err)
	}
	if originalRaw.Valid {
		original, err := decimal.NewFromString(originalRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse original amount for %s: %w", id, err)
		}
		rec.OriginalAmount = &original
	}
	rec.DestinationAccount = destination.String
	rec.UpdatedEnvironment = updatedEnv.String
	rec.Details = details.String
	return rec, nil
}

func updateTransactionStatus(tx *sql.Tx, id string, status models.TransactionStatus, details, updatedEnv string, at time.Time) error {
	result, err := tx.Exec(`
		UPDATE transactions
		SET status = $1, details = $2, updated_environment = $3, updated_at = $4
		WHERE transaction_id = $5`,
		string(status), details, updatedEnv, at, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
