package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadSQLite reads every row of table from the SQLite database at path.
func LoadSQLite(ctx context.Context, path, table string) (*Table, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("dataset: invalid table name %q", table)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("dataset: query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	b, err := newRowBuilder(cols)
	if err != nil {
		return nil, err
	}

	t := &Table{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	row := make([]string, len(cols))
	for n := 1; rows.Next(); n++ {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dataset: row %d: %w", n, err)
		}
		for i, v := range values {
			row[i] = text(v)
		}
		rec, err := b.build(row)
		if err != nil {
			return nil, fmt.Errorf("dataset: row %d: %w", n, err)
		}
		t.Records = append(t.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return t, nil
}

// WriteSQLite creates table in the database at path and inserts records.
func WriteSQLite(ctx context.Context, path, table string, records []receipt.LabeledRecord) (err error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifier.MatchString(table) {
		return fmt.Errorf("dataset: invalid table name %q", table)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dataset: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		vendor TEXT,
		total_amount REAL,
		date TEXT,
		item_count INTEGER,
		tip REAL,
		payment_method TEXT,
		is_fraud INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("dataset: create %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+
		` (vendor, total_amount, date, item_count, tip, payment_method, is_fraud) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("dataset: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		label := 0
		if r.IsFraud {
			label = 1
		}
		if _, err := stmt.ExecContext(ctx, r.Vendor, r.TotalAmount, r.Date, r.ItemCount, r.Tip, r.PaymentMethod, label); err != nil {
			return fmt.Errorf("dataset: insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
