package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"insights/internal/core"
	"insights/internal/datasets"

	_ "modernc.org/sqlite"
)

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Snapshot is the stored category total of one dataset.
type Snapshot struct {
	DatasetID  string
	SessionID  string
	Category   string
	Amount     decimal.Decimal
	Percentage float64
	Rank       int
	TakenAt    time.Time
}

// SQLiteRepository is the sqlite backed dataset store. It also keeps the
// category snapshots written by the worker.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ datasets.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save implements datasets.Writer. The previous current dataset of the
// session is retired in the same transaction.
func (r *SQLiteRepository) Save(ctx context.Context, ds datasets.Dataset) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.RetireCurrentDatasets(ctx, ds.SessionID); err != nil {
		return fmt.Errorf("retire current dataset: %w", err)
	}
	if err := q.CreateDataset(ctx, CreateDatasetParams{
		ID:        ds.ID,
		SessionID: ds.SessionID,
		FileName:  ds.FileName,
		LoadedAt:  formatTime(ds.LoadedAt),
	}); err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}

	txStmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return fmt.Errorf("prepare transaction insert: %w", err)
	}
	defer txStmt.Close()
	for i, t := range ds.Transactions {
		if _, err := txStmt.ExecContext(ctx, ds.ID, i, t.Date.Format(time.RFC3339Nano), t.Description, t.Category, t.Amount.String()); err != nil {
			return fmt.Errorf("insert transaction %d: %w", i, err)
		}
	}

	errStmt, err := tx.PrepareContext(ctx, insertRowError)
	if err != nil {
		return fmt.Errorf("prepare row error insert: %w", err)
	}
	defer errStmt.Close()
	for i, e := range ds.RowErrors {
		if _, err := errStmt.ExecContext(ctx, ds.ID, i, e.Row, e.Column, e.Value, e.Reason); err != nil {
			return fmt.Errorf("insert row error %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}

	slog.DebugContext(ctx, "Dataset saved to SQLite",
		"dataset_id", ds.ID,
		"session_id", ds.SessionID,
		"transactions", len(ds.Transactions),
		"skipped", len(ds.RowErrors))
	return nil
}

// Delete implements datasets.Writer.
func (r *SQLiteRepository) Delete(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.queries.WithTx(tx).DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return tx.Commit()
}

// Current implements datasets.Reader.
func (r *SQLiteRepository) Current(ctx context.Context, sessionID string) (datasets.Ref, error) {
	row, err := r.queries.GetCurrentDataset(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return datasets.Ref{}, datasets.ErrNotFound
	}
	if err != nil {
		return datasets.Ref{}, fmt.Errorf("get current dataset: %w", err)
	}
	return row.ref()
}

// Get implements datasets.Reader.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (datasets.Dataset, error) {
	row, err := r.queries.GetDataset(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return datasets.Dataset{}, datasets.ErrNotFound
	}
	if err != nil {
		return datasets.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	ref, err := row.ref()
	if err != nil {
		return datasets.Dataset{}, err
	}

	txRows, err := r.queries.ListTransactions(ctx, id)
	if err != nil {
		return datasets.Dataset{}, fmt.Errorf("list transactions: %w", err)
	}
	errRows, err := r.queries.ListRowErrors(ctx, id)
	if err != nil {
		return datasets.Dataset{}, fmt.Errorf("list row errors: %w", err)
	}

	ds := datasets.Dataset{
		ID:           ref.ID,
		SessionID:    ref.SessionID,
		FileName:     ref.FileName,
		LoadedAt:     ref.LoadedAt,
		Transactions: make([]core.Transaction, 0, len(txRows)),
	}
	for i, t := range txRows {
		date, err := time.Parse(time.RFC3339Nano, t.Date)
		if err != nil {
			return datasets.Dataset{}, fmt.Errorf("transaction %d: parse date %q: %w", i, t.Date, err)
		}
		amount, err := decimal.NewFromString(t.Amount)
		if err != nil {
			return datasets.Dataset{}, fmt.Errorf("transaction %d: parse amount %q: %w", i, t.Amount, err)
		}
		ds.Transactions = append(ds.Transactions, core.Transaction{
			Date:        date,
			Description: t.Description,
			Category:    t.Category,
			Amount:      amount,
		})
	}
	for _, e := range errRows {
		ds.RowErrors = append(ds.RowErrors, core.RowError{
			Row:    int(e.Line),
			Column: e.ColumnName,
			Value:  e.Value,
			Reason: e.Reason,
		})
	}
	return ds, nil
}

// SaveSnapshots records the category totals of a dataset. Writing the same
// dataset twice overwrites the earlier rows.
func (r *SQLiteRepository) SaveSnapshots(ctx context.Context, ref datasets.Ref, summary []core.CategorySummary, takenAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSnapshot)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	at := formatTime(takenAt)
	for rank, s := range summary {
		if _, err := stmt.ExecContext(ctx, ref.ID, ref.SessionID, s.Category, s.Amount.String(), s.Percentage, rank+1, at); err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", s.Category, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}

	slog.InfoContext(ctx, "Category snapshots saved",
		"dataset_id", ref.ID,
		"session_id", ref.SessionID,
		"categories", len(summary))
	return nil
}

// ListSnapshots returns the session's snapshot history, oldest first.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	rows, err := r.queries.ListSnapshots(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s/%s: parse amount: %w", row.DatasetID, row.Category, err)
		}
		takenAt, err := time.Parse(timeLayout, row.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s/%s: parse time: %w", row.DatasetID, row.Category, err)
		}
		out = append(out, Snapshot{
			DatasetID:  row.DatasetID,
			SessionID:  row.SessionID,
			Category:   row.Category,
			Amount:     amount,
			Percentage: row.Percentage,
			Rank:       int(row.Rank),
			TakenAt:    takenAt,
		})
	}
	return out, nil
}

func (r datasetRow) ref() (datasets.Ref, error) {
	loadedAt, err := time.Parse(timeLayout, r.LoadedAt)
	if err != nil {
		return datasets.Ref{}, fmt.Errorf("dataset %s: parse loaded_at: %w", r.ID, err)
	}
	return datasets.Ref{
		ID:           r.ID,
		SessionID:    r.SessionID,
		FileName:     r.FileName,
		LoadedAt:     loadedAt,
		Transactions: int(r.Transactions),
		Skipped:      int(r.Skipped),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
