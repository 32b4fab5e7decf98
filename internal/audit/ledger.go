package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/finvault/corebank/internal/config"
	"github.com/finvault/corebank/internal/models"
)

// Direction partitions ledger artifacts by money flow.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

var (
	inboundHeader  = []string{"transaction_id", "amount", "type", "timestamp", "source", "status"}
	outboundHeader = []string{"transaction_id", "type", "amount", "source", "destination", "timestamp", "status"}
)

// Ledger is the durable file-based audit trail, kept independent of the
// database so state can be reconstructed when the database is down.
// Per-direction JSON writes are serialized by inboundMu/outboundMu and
// daily CSV appends by batchMu; the locks guard file I/O only and are
// never held across database calls.
type Ledger struct {
	baseDir    string
	env        string
	production bool

	inboundMu  sync.Mutex
	outboundMu sync.Mutex
	batchMu    sync.Mutex
}

// NewLedger builds a ledger rooted at baseDir. Non-production
// environments write under an extra <env>/ directory level so test and
// development artifacts never mix with production ones.
func NewLedger(baseDir string, env config.Environment) *Ledger {
	return &Ledger{
		baseDir:    baseDir,
		env:        env.Name,
		production: env.IsProduction(),
	}
}

func (l *Ledger) dir(d Direction) string {
	if l.production {
		return filepath.Join(l.baseDir, string(d))
	}
	return filepath.Join(l.baseDir, l.env, string(d))
}

func (l *Ledger) directionMu(d Direction) *sync.Mutex {
	if d == Outbound {
		return &l.outboundMu
	}
	return &l.inboundMu
}

// WriteRecord writes the per-transaction JSON artifact, one file per
// transaction named by direction and id.
func (l *Ledger) WriteRecord(rec *models.TransactionRecord, d Direction) error {
	mu := l.directionMu(d)
	mu.Lock()
	defer mu.Unlock()

	dir := l.dir(d)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	entry := models.NewLedgerEntry(rec)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", d, rec.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger entry: %w", err)
	}
	return nil
}

// AppendBatchRow appends one row to the daily batch CSV for the given
// direction. New files get their header written exactly once; rows are
// appended, never rewritten. Both directions share batchMu because the
// header-creation race is the same for each file.
func (l *Ledger) AppendBatchRow(rec *models.TransactionRecord, d Direction) error {
	l.batchMu.Lock()
	defer l.batchMu.Unlock()

	dir := l.dir(d)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	name := fmt.Sprintf("%s_batch_%s.csv", d, rec.CreatedAt.Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat batch file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(l.header(d)); err != nil {
			return fmt.Errorf("write batch header: %w", err)
		}
	}
	if err := w.Write(l.row(rec, d)); err != nil {
		return fmt.Errorf("write batch row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (l *Ledger) header(d Direction) []string {
	if d == Outbound {
		return outboundHeader
	}
	return inboundHeader
}

func (l *Ledger) row(rec *models.TransactionRecord, d Direction) []string {
	ts := rec.CreatedAt.Format(time.RFC3339)
	if d == Outbound {
		return []string{
			rec.ID,
			string(rec.Type),
			rec.Amount.String(),
			rec.SourceAccount,
			rec.DestinationAccount,
			ts,
			string(rec.Status),
		}
	}
	return []string{
		rec.ID,
		rec.Amount.String(),
		string(rec.Type),
		ts,
		rec.SourceAccount,
		string(rec.Status),
	}
}
