package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrOrderNotFound is returned when no order record matches the given id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderPaid is returned by SaveOrder when the existing record is already paid.
	ErrOrderPaid = errors.New("order already paid")
)

// checkedAtLayout sorts lexically in time order.
const checkedAtLayout = "2006-01-02 15:04:05.000000000"

// Order payment states written by the payment service and the reconciler.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// OrderRecord is the persisted view of a shop order as far as payments are concerned.
type OrderRecord struct {
	OrderID         string    `json:"orderId"`
	MerchantOrderID string    `json:"merchantOrderId"`
	AmountPaise     int64     `json:"amountPaise"`
	PaymentStatus   string    `json:"paymentStatus"`
	Status          string    `json:"status"`
	TransactionID   string    `json:"transactionId"`
	PaymentURL      string    `json:"paymentUrl"`
	GatewayResponse string    `json:"gatewayResponse"`
	CheckedAt       time.Time `json:"checkedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// orderColumns lists the columns that may appear in filters and field updates.
var orderColumns = map[string]bool{
	"order_id":          true,
	"merchant_order_id": true,
	"amount_paise":      true,
	"payment_status":    true,
	"status":            true,
	"transaction_id":    true,
	"payment_url":       true,
	"gateway_response":  true,
}

// SQLiteStorage keeps orders and runtime settings in a single SQLite file.
// database/sql serializes access to the pool, so no extra mutex is held here.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStorage) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !isBusy(err) {
			return err
		}
		lastErr = err
		if attempt < maxRetries {
			// 10ms, 20ms, 40ms, 80ms
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			log.Printf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1)
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// NewSQLiteStorage opens (and creates if needed) the order store at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	storage := &SQLiteStorage{
		db:   db,
		path: dbPath,
	}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA temp_store = memory;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("Warning: Failed to execute %s: %v", pragma, err)
		}
	}

	log.Printf("SQLite storage initialized at: %s", dbPath)
	return storage, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		merchant_order_id TEXT NOT NULL DEFAULT '',
		amount_paise INTEGER NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		status TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		payment_url TEXT NOT NULL DEFAULT '',
		gateway_response TEXT NOT NULL DEFAULT '',
		checked_at TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status);
	CREATE INDEX IF NOT EXISTS idx_orders_merchant_order_id ON orders(merchant_order_id);
	`

	if _, err := s.db.Exec(query); err != nil {
		return err
	}

	// stores created before checked_at existed
	if _, err := s.db.Exec(`ALTER TABLE orders ADD COLUMN checked_at TEXT`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

// GetSetting returns a runtime setting, or "" when it is not stored.
func (s *SQLiteStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.retryOperation(func() error {
		err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			value = ""
			return nil
		}
		return err
	}, 3)
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// Lookup makes the settings table usable as a configuration Source.
func (s *SQLiteStorage) Lookup(key string) (string, bool) {
	value, err := s.GetSetting(context.Background(), key)
	if err != nil {
		log.Printf("Warning: settings lookup for %s failed: %v", key, err)
		return "", false
	}
	return value, value != ""
}

// SaveOrder records an accepted initiation. An existing record gets the new
// attempt's payment columns, its transaction id is kept and it is queued for
// the next sweep. A paid record is never touched and yields ErrOrderPaid.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, rec OrderRecord) error {
	if rec.OrderID == "" {
		return fmt.Errorf("order id cannot be empty")
	}
	if rec.PaymentStatus == "" {
		rec.PaymentStatus = PaymentStatusPending
	}

	var affected int64
	err := s.retryOperation(func() error {
		res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, merchant_order_id, amount_paise, payment_status, status,
			transaction_id, payment_url, gateway_response, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			merchant_order_id = excluded.merchant_order_id,
			amount_paise = excluded.amount_paise,
			payment_status = excluded.payment_status,
			status = excluded.status,
			payment_url = excluded.payment_url,
			gateway_response = excluded.gateway_response,
			checked_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE orders.payment_status != ?
		`, rec.OrderID, rec.MerchantOrderID, rec.AmountPaise, rec.PaymentStatus, rec.Status,
			rec.TransactionID, rec.PaymentURL, rec.GatewayResponse, PaymentStatusPaid)
		if err != nil {
			return fmt.Errorf("failed to save order %s: %w", rec.OrderID, err)
		}
		affected, err = res.RowsAffected()
		return err
	}, 3)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderPaid
	}
	return nil
}

// GetOrder loads a single order by its shop order id.
func (s *SQLiteStorage) GetOrder(ctx context.Context, orderID string) (*OrderRecord, error) {
	var rec *OrderRecord
	err := s.retryOperation(func() error {
		row := s.db.QueryRowContext(ctx, selectOrder+` WHERE order_id = ?`, orderID)
		r, err := scanOrder(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order %s: %w", orderID, err)
		}
		rec = r
		return nil
	}, 3)
	return rec, err
}

// UpdateOrders applies fields to every order matching filter and returns the number of rows changed.
// Only known order columns are accepted on either side.
func (s *SQLiteStorage) UpdateOrders(ctx context.Context, filter, fields map[string]any) (int64, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("update filter cannot be empty")
	}
	if len(fields) == 0 {
		return 0, nil
	}

	setCols, setArgs, err := columnList(fields)
	if err != nil {
		return 0, err
	}
	whereCols, whereArgs, err := columnList(filter)
	if err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(setCols)+1)
	for _, c := range setCols {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	wheres := make([]string, 0, len(whereCols))
	for _, c := range whereCols {
		wheres = append(wheres, c+" = ?")
	}

	query := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(wheres, " AND ")
	args := append(setArgs, whereArgs...)

	var affected int64
	err = s.retryOperation(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update orders: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	}, 3)
	return affected, err
}

// UpsertOrderStatus updates the order identified by orderID, creating it when absent.
func (s *SQLiteStorage) UpsertOrderStatus(ctx context.Context, orderID string, fields map[string]any) error {
	n, err := s.UpdateOrders(ctx, map[string]any{"order_id": orderID}, fields)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	cols, args, err := columnList(fields)
	if err != nil {
		return err
	}
	cols = append([]string{"order_id"}, cols...)
	args = append([]any{orderID}, args...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	query := "INSERT INTO orders (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"
	return s.retryOperation(func() error {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert order %s: %w", orderID, err)
		}
		return nil
	}, 3)
}

// MarkChecked stamps the time a sweep last looked at an order, whatever the outcome.
func (s *SQLiteStorage) MarkChecked(ctx context.Context, orderID string, at time.Time) error {
	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE orders SET checked_at = ? WHERE order_id = ?`,
			at.UTC().Format(checkedAtLayout), orderID)
		if err != nil {
			return fmt.Errorf("failed to mark order %s checked: %w", orderID, err)
		}
		return nil
	}, 3)
}

// PendingOrders returns up to limit orders still waiting on the gateway. Orders
// never swept come first, then the ones checked longest ago.
func (s *SQLiteStorage) PendingOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var orders []OrderRecord
	err := s.retryOperation(func() error {
		rows, err := s.db.QueryContext(ctx, selectOrder+`
		WHERE payment_status = ? AND merchant_order_id != ''
		ORDER BY checked_at IS NOT NULL, checked_at ASC, created_at ASC, rowid ASC LIMIT ?`, PaymentStatusPending, limit)
		if err != nil {
			return fmt.Errorf("failed to query pending orders: %w", err)
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			rec, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("failed to scan order: %w", err)
			}
			orders = append(orders, *rec)
		}
		return rows.Err()
	}, 3)
	return orders, err
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStats returns database statistics
func (s *SQLiteStorage) GetStats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	stats["total_orders"] = total

	rows, err := s.db.QueryContext(ctx, "SELECT payment_status, COUNT(*) FROM orders GROUP BY payment_status")
	if err != nil {
		return nil, fmt.Errorf("failed to group orders: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan order counts: %w", err)
		}
		byStatus[status] = count
	}
	stats["orders_by_payment_status"] = byStatus

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats["db_size_bytes"] = fileInfo.Size()
	}
	stats["db_path"] = s.path

	return stats, rows.Err()
}

const selectOrder = `
	SELECT order_id, merchant_order_id, amount_paise, payment_status, status,
		transaction_id, payment_url, gateway_response, checked_at, created_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*OrderRecord, error) {
	var rec OrderRecord
	var checkedAt sql.NullString
	err := row.Scan(&rec.OrderID, &rec.MerchantOrderID, &rec.AmountPaise, &rec.PaymentStatus, &rec.Status,
		&rec.TransactionID, &rec.PaymentURL, &rec.GatewayResponse, &checkedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if checkedAt.Valid {
		if t, err := time.Parse(checkedAtLayout, checkedAt.String); err == nil {
			rec.CheckedAt = t
		}
	}
	return &rec, nil
}

// columnList returns sorted column names and their values, rejecting unknown columns.
func columnList(m map[string]any) ([]string, []any, error) {
	cols := make([]string, 0, len(m))
	for c := range m {
		if !orderColumns[c] {
			return nil, nil, fmt.Errorf("unknown order column: %s", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, m[c])
	}
	return cols, args, nil
}
