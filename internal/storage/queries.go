package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the statements used by the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const retireCurrentDatasets = `UPDATE datasets SET is_current = 0 WHERE session_id = ? AND is_current = 1`

func (q *Queries) RetireCurrentDatasets(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, retireCurrentDatasets, sessionID)
	return err
}

const createDataset = `INSERT INTO datasets (id, session_id, file_name, loaded_at, is_current) VALUES (?, ?, ?, ?, 1)`

type CreateDatasetParams struct {
	ID        string
	SessionID string
	FileName  string
	LoadedAt  string
}

func (q *Queries) CreateDataset(ctx context.Context, arg CreateDatasetParams) error {
	_, err := q.db.ExecContext(ctx, createDataset, arg.ID, arg.SessionID, arg.FileName, arg.LoadedAt)
	return err
}

const insertTransaction = `INSERT INTO transactions (dataset_id, position, date, description, category, amount) VALUES (?, ?, ?, ?, ?, ?)`

const insertRowError = `INSERT INTO row_errors (dataset_id, position, line, column_name, value, reason) VALUES (?, ?, ?, ?, ?, ?)`

type datasetRow struct {
	ID           string
	SessionID    string
	FileName     string
	LoadedAt     string
	Transactions int64
	Skipped      int64
}

const datasetColumns = `d.id, d.session_id, d.file_name, d.loaded_at,
	(SELECT COUNT(*) FROM transactions t WHERE t.dataset_id = d.id),
	(SELECT COUNT(*) FROM row_errors e WHERE e.dataset_id = d.id)`

const getCurrentDataset = `SELECT ` + datasetColumns + `
FROM datasets d
WHERE d.session_id = ? AND d.is_current = 1
ORDER BY d.loaded_at DESC
LIMIT 1`

func (q *Queries) GetCurrentDataset(ctx context.Context, sessionID string) (datasetRow, error) {
	var r datasetRow
	err := q.db.QueryRowContext(ctx, getCurrentDataset, sessionID).
		Scan(&r.ID, &r.SessionID, &r.FileName, &r.LoadedAt, &r.Transactions, &r.Skipped)
	return r, err
}

const getDataset = `SELECT ` + datasetColumns + ` FROM datasets d WHERE d.id = ?`

func (q *Queries) GetDataset(ctx context.Context, id string) (datasetRow, error) {
	var r datasetRow
	err := q.db.QueryRowContext(ctx, getDataset, id).
		Scan(&r.ID, &r.SessionID, &r.FileName, &r.LoadedAt, &r.Transactions, &r.Skipped)
	return r, err
}

type transactionRow struct {
	Date        string
	Description string
	Category    string
	Amount      string
}

const listTransactions = `SELECT date, description, category, amount FROM transactions WHERE dataset_id = ? ORDER BY position`

func (q *Queries) ListTransactions(ctx context.Context, datasetID string) ([]transactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []transactionRow
	for rows.Next() {
		var i transactionRow
		if err := rows.Scan(&i.Date, &i.Description, &i.Category, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type rowErrorRow struct {
	Line       int64
	ColumnName string
	Value      string
	Reason     string
}

const listRowErrors = `SELECT line, column_name, value, reason FROM row_errors WHERE dataset_id = ? ORDER BY position`

func (q *Queries) ListRowErrors(ctx context.Context, datasetID string) ([]rowErrorRow, error) {
	rows, err := q.db.QueryContext(ctx, listRowErrors, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []rowErrorRow
	for rows.Next() {
		var i rowErrorRow
		if err := rows.Scan(&i.Line, &i.ColumnName, &i.Value, &i.Reason); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteSessionTransactions = `DELETE FROM transactions WHERE dataset_id IN (SELECT id FROM datasets WHERE session_id = ?)`
const deleteSessionRowErrors = `DELETE FROM row_errors WHERE dataset_id IN (SELECT id FROM datasets WHERE session_id = ?)`
const deleteSessionSnapshots = `DELETE FROM category_snapshots WHERE session_id = ?`
const deleteSessionDatasets = `DELETE FROM datasets WHERE session_id = ?`

func (q *Queries) DeleteSession(ctx context.Context, sessionID string) error {
	for _, stmt := range []string{deleteSessionTransactions, deleteSessionRowErrors, deleteSessionSnapshots, deleteSessionDatasets} {
		if _, err := q.db.ExecContext(ctx, stmt, sessionID); err != nil {
			return err
		}
	}
	return nil
}

const upsertSnapshot = `INSERT INTO category_snapshots (dataset_id, session_id, category, amount, percentage, rank, taken_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (dataset_id, category) DO UPDATE SET
    amount = excluded.amount,
    percentage = excluded.percentage,
    rank = excluded.rank,
    taken_at = excluded.taken_at`

type snapshotRow struct {
	DatasetID  string
	SessionID  string
	Category   string
	Amount     string
	Percentage float64
	Rank       int64
	TakenAt    string
}

const listSnapshots = `SELECT dataset_id, session_id, category, amount, percentage, rank, taken_at
FROM category_snapshots
WHERE session_id = ?
ORDER BY taken_at, rank`

func (q *Queries) ListSnapshots(ctx context.Context, sessionID string) ([]snapshotRow, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshots, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []snapshotRow
	for rows.Next() {
		var i snapshotRow
		if err := rows.Scan(&i.DatasetID, &i.SessionID, &i.Category, &i.Amount, &i.Percentage, &i.Rank, &i.TakenAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
