package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/corebank/internal/config"
	"github.com/finvault/corebank/internal/models"
)

func testRecord(id string) *models.TransactionRecord {
	created, _ := time.Parse(time.RFC3339, "2026-03-14T09:30:00Z")
	return &models.TransactionRecord{
		ID:             id,
		Type:           models.TypeDeposit,
		Amount:         decimal.RequireFromString("150.75"),
		Currency:       "INR",
		Status:         models.StatusSuccess,
		SourceAccount:  "ACC1",
		EnvironmentTag: "test",
		ApprovalStatus: models.ApprovalPending,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestWriteRecordProducesJSONArtifact(t *testing.T) {
	dir := t.TempDir()
	ledger := NewLedger(dir, config.Environment{Name: config.EnvTest})

	rec := testRecord("TEST-TXN-1")
	original := decimal.RequireFromString("999")
	rec.OriginalAmount = &original
	rec.RequiresApproval = true

	require.NoError(t, ledger.WriteRecord(rec, Inbound))

	data, err := os.ReadFile(filepath.Join(dir, "test", "inbound", "inbound_TEST-TXN-1.json"))
	require.NoError(t, err)

	var entry models.LedgerEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "TEST-TXN-1", entry.TransactionID)
	assert.Equal(t, "150.75", entry.Amount)
	assert.Equal(t, "999", entry.OriginalAmount)
	assert.Equal(t, "DEPOSIT", entry.Type)
	assert.Equal(t, "SUCCESS", entry.Status)
	assert.Equal(t, "test", entry.Environment)
	assert.True(t, entry.RequiresApproval)
}

func TestProductionLedgerIsNotPartitioned(t *testing.T) {
	dir := t.TempDir()
	ledger := NewLedger(dir, config.Environment{Name: config.EnvProduction})

	require.NoError(t, ledger.WriteRecord(testRecord("TXN-1"), Outbound))

	_, err := os.Stat(filepath.Join(dir, "outbound", "outbound_TXN-1.json"))
	assert.NoError(t, err)
}

func TestAppendBatchRowWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	ledger := NewLedger(dir, config.Environment{Name: config.EnvTest})

	require.NoError(t, ledger.AppendBatchRow(testRecord("TXN-1"), Inbound))
	require.NoError(t, ledger.AppendBatchRow(testRecord("TXN-2"), Inbound))

	f, err := os.Open(filepath.Join(dir, "test", "inbound", "inbound_batch_2026-03-14.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"transaction_id", "amount", "type", "timestamp", "source", "status"}, rows[0])
	assert.Equal(t, []string{"TXN-1", "150.75", "DEPOSIT", "2026-03-14T09:30:00Z", "ACC1", "SUCCESS"}, rows[1])
	assert.Equal(t, "TXN-2", rows[2][0])
}

func TestAppendBatchRowOutboundColumns(t *testing.T) {
	dir := t.TempDir()
	ledger := NewLedger(dir, config.Environment{Name: config.EnvTest})

	rec := testRecord("TXN-9")
	rec.Type = models.TypeTransfer
	rec.DestinationAccount = "ACC2"
	require.NoError(t, ledger.AppendBatchRow(rec, Outbound))

	f, err := os.Open(filepath.Join(dir, "test", "outbound", "outbound_batch_2026-03-14.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"transaction_id", "type", "amount", "source", "destination", "timestamp", "status"}, rows[0])
	assert.Equal(t, []string{"TXN-9", "TRANSFER", "150.75", "ACC1", "ACC2", "2026-03-14T09:30:00Z", "SUCCESS"}, rows[1])
}

func TestConcurrentAppendsProduceOneRowEach(t *testing.T) {
	dir := t.TempDir()
	ledger := NewLedger(dir, config.Environment{Name: config.EnvTest})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testRecord(fmt.Sprintf("TXN-%d", i))
			assert.NoError(t, ledger.WriteRecord(rec, Inbound))
			assert.NoError(t, ledger.AppendBatchRow(rec, Inbound))
		}(i)
	}
	wg.Wait()

	files, err := os.ReadDir(filepath.Join(dir, "test", "inbound"))
	require.NoError(t, err)
	// n JSON artifacts plus one batch CSV.
	assert.Len(t, files, n+1)

	f, err := os.Open(filepath.Join(dir, "test", "inbound", "inbound_batch_2026-03-14.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, n+1)
}
