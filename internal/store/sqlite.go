package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"voltalpha/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const dateLayout = "2006-01-02"

// schema is applied on open. Money columns are decimal text so stored
// values compare and sum exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol           TEXT NOT NULL,
		algorithm        TEXT NOT NULL,
		start_date       TEXT NOT NULL,
		end_date         TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		end_value        TEXT NOT NULL,
		total_return     REAL NOT NULL,
		volatility_alpha REAL NOT NULL,
		summary_json     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_symbol_algorithm ON runs (symbol, algorithm)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		run_id           INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq              INTEGER NOT NULL,
		date             TEXT NOT NULL,
		side             TEXT NOT NULL,
		reason           TEXT NOT NULL,
		trigger_price    TEXT NOT NULL,
		fill_price       TEXT NOT NULL,
		qty              INTEGER NOT NULL,
		holdings         INTEGER NOT NULL,
		bank             TEXT NOT NULL,
		gap              INTEGER NOT NULL,
		skipped          INTEGER NOT NULL,
		stack_shares     INTEGER NOT NULL,
		stack_cost_basis TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		date        TEXT NOT NULL,
		amount      TEXT NOT NULL,
		source      TEXT NOT NULL,
		shares_sold INTEGER NOT NULL,
		price       TEXT NOT NULL,
		bank        TEXT NOT NULL,
		holdings    INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// the schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps the foreign_keys pragma in effect and serialises
	// writers from the batch pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts run, its transactions and its withdrawals in a single
// database transaction. run.ID and run.CreatedAt are set on success.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (int64, error) {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return 0, fmt.Errorf("encoding summary: %w", err)
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (symbol, algorithm, start_date, end_date, created_at,
			end_value, total_return, volatility_alpha, summary_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Symbol, run.Algorithm,
		run.Start.Format(dateLayout), run.End.Format(dateLayout),
		createdAt.Format(time.RFC3339),
		money(run.Summary.EndValue),
		run.Summary.TotalReturn, run.Summary.VolatilityAlpha,
		string(summary),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, t := range run.Transactions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (run_id, seq, date, side, reason, trigger_price,
				fill_price, qty, holdings, bank, gap, skipped, stack_shares, stack_cost_basis)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, t.Date.Format(dateLayout), string(t.Side), string(t.Reason),
			price(t.Trigger), price(t.FillPrice), t.Qty, t.Holdings, money(t.Bank),
			t.Gap, t.Skipped, t.StackShares, price(t.StackCostBasis),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting transaction %d: %w", i, err)
		}
	}

	for i, w := range run.Withdrawals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO withdrawals (run_id, seq, date, amount, source, shares_sold,
				price, bank, holdings)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, w.Date.Format(dateLayout), money(w.Amount), string(w.Source),
			w.SharesSold, price(w.Price), money(w.Bank), w.Holdings,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting withdrawal %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	run.ID, run.CreatedAt = id, createdAt
	return id, nil
}

// GetRun loads a run with its ledgers.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, algorithm, start_date, end_date, created_at, summary_json
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	if run.Transactions, err = s.transactions(ctx, id); err != nil {
		return nil, err
	}
	if run.Withdrawals, err = s.withdrawals(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs matching filter, newest first, without ledgers.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, algorithm, start_date, end_date, created_at, summary_json
		 FROM runs
		 WHERE (? = '' OR symbol = ?) AND (? = '' OR algorithm = ?)
		 ORDER BY id DESC
		 LIMIT ?`,
		filter.Symbol, filter.Symbol, filter.Algorithm, filter.Algorithm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its ledgers.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM transactions WHERE run_id = ?`,
		`DELETE FROM withdrawals WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Row helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                          Run
		start, end, created, summary string
	)
	if err := sc.Scan(&run.ID, &run.Symbol, &run.Algorithm, &start, &end, &created, &summary); err != nil {
		return nil, err
	}
	run.Start, _ = time.Parse(dateLayout, start)
	run.End, _ = time.Parse(dateLayout, end)
	run.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("decoding summary of run %d: %w", run.ID, err)
	}
	return &run, nil
}

func (s *SQLiteStore) transactions(ctx context.Context, runID int64) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, side, reason, trigger_price, fill_price, qty, holdings, bank,
			gap, skipped, stack_shares, stack_cost_basis
		 FROM transactions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t                                   domain.Transaction
			date, side, reason                  string
			trigger, fill, bank, stackCostBasis string
		)
		if err := rows.Scan(&date, &side, &reason, &trigger, &fill, &t.Qty, &t.Holdings,
			&bank, &t.Gap, &t.Skipped, &t.StackShares, &stackCostBasis); err != nil {
			return nil, err
		}
		t.Date, _ = time.Parse(dateLayout, date)
		t.Side = domain.OrderSide(side)
		t.Reason = domain.OrderReason(reason)
		t.Trigger = toFloat(trigger)
		t.FillPrice = toFloat(fill)
		t.Bank = toFloat(bank)
		t.StackCostBasis = toFloat(stackCostBasis)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) withdrawals(ctx context.Context, runID int64) ([]domain.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, amount, source, shares_sold, price, bank, holdings
		 FROM withdrawals WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Withdrawal
	for rows.Next() {
		var (
			w                               domain.Withdrawal
			date, amount, source, prc, bank string
		)
		if err := rows.Scan(&date, &amount, &source, &w.SharesSold, &prc, &bank, &w.Holdings); err != nil {
			return nil, err
		}
		w.Date, _ = time.Parse(dateLayout, date)
		w.Amount = toFloat(amount)
		w.Source = domain.WithdrawalSource(source)
		w.Price = toFloat(prc)
		w.Bank = toFloat(bank)
		out = append(out, w)
	}
	return out, rows.Err()
}

// money renders a currency amount rounded to cents.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// price renders a price without loss.
func price(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func toFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
