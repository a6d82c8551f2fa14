package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rahulm/bank-lending/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// under concurrent payment application.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist and seeds the
// default customers. We use TEXT for decimal fields in SQLite to ensure no
// precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_code TEXT UNIQUE NOT NULL,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		principal TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		monthly_emi TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		emis_left INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		emis_left INTEGER NOT NULL,
		payment_date DATETIME NOT NULL,
		FOREIGN KEY (loan_id) REFERENCES loans(id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	const seed = `
	INSERT OR IGNORE INTO customers (customer_code, name) VALUES
		('CUST001', 'Alice'),
		('CUST002', 'Bob'),
		('CUST003', 'Charlie');
	`
	if _, err := s.db.Exec(seed); err != nil {
		return fmt.Errorf("failed to seed customers: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *SQLiteStore) GetCustomer(id int64) (*models.Customer, error) {
	var c models.Customer
	row := s.db.QueryRow(`SELECT id, customer_code, name FROM customers WHERE id = ?`, id)
	if err := row.Scan(&c.ID, &c.Code, &c.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// GetAllCustomers retrieves all customers.
func (s *SQLiteStore) GetAllCustomers() ([]*models.Customer, error) {
	rows, err := s.db.Query(`SELECT id, customer_code, name FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// CreateLoan inserts a new loan and fills in its generated ID.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	res, err := s.db.Exec(
		`INSERT INTO loans (customer_id, principal, total_amount, monthly_emi, amount_paid, emis_left, status, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.CustomerID, loan.Principal, loan.TotalAmount, loan.MonthlyEMI, loan.AmountPaid, loan.EMIsLeft, loan.Status, loan.Version, loan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read loan id: %w", err)
	}
	loan.ID = id
	return nil
}

const loanColumns = `id, customer_id, principal, total_amount, monthly_emi, amount_paid, emis_left, status, version, created_at`

// GetLoan retrieves a loan by its ID regardless of status.
func (s *SQLiteStore) GetLoan(id int64) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	return scanLoan(row)
}

// GetActiveLoan retrieves a loan only while it is ACTIVE. Missing and CLOSED
// loans both come back as ErrNotFound.
func (s *SQLiteStore) GetActiveLoan(id int64) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ? AND status = ?`, id, models.LoanStatusActive)
	return scanLoan(row)
}

// GetLoansForCustomer retrieves all loans belonging to a customer.
func (s *SQLiteStore) GetLoansForCustomer(customerID int64) ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for customer %d: %w", customerID, err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		var loan models.Loan
		var created time.Time
		if err := rows.Scan(&loan.ID, &loan.CustomerID, &loan.Principal, &loan.TotalAmount, &loan.MonthlyEMI, &loan.AmountPaid, &loan.EMIsLeft, &loan.Status, &loan.Version, &created); err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loan.CreatedAt = created
		loans = append(loans, &loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func scanLoan(row *sql.Row) (*models.Loan, error) {
	var loan models.Loan
	var created time.Time
	err := row.Scan(&loan.ID, &loan.CustomerID, &loan.Principal, &loan.TotalAmount, &loan.MonthlyEMI, &loan.AmountPaid, &loan.EMIsLeft, &loan.Status, &loan.Version, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	loan.CreatedAt = created
	return &loan, nil
}

// ApplyPaymentAtomic updates the loan projection and appends the payment row
// in one transaction. The update is guarded by the loan's version: if the row
// changed since it was read, nothing is written and ErrStaleLoan is returned.
func (s *SQLiteStore) ApplyPaymentAtomic(loanID, expectedVersion int64, newPaid decimal.Decimal, newEMIsLeft int, closeLoan bool, payment *models.Payment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := models.LoanStatusActive
	if closeLoan {
		status = models.LoanStatusClosed
	}

	res, err := tx.Exec(
		`UPDATE loans SET amount_paid = ?, emis_left = ?, status = ?, version = version + 1
		WHERE id = ? AND status = ? AND version = ?`,
		newPaid, newEMIsLeft, status, loanID, models.LoanStatusActive, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleLoan
	}

	payment.PaymentDate = time.Now().UTC()
	ins, err := tx.Exec(
		`INSERT INTO payments (loan_id, amount, payment_type, remaining_balance, emis_left, payment_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		payment.LoanID, payment.Amount, payment.Type, payment.RemainingBalance, payment.EMIsLeft, payment.PaymentDate,
	)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	paymentID, err := ins.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payment id: %w", err)
	}
	payment.ID = paymentID

	return tx.Commit()
}

// GetPaymentsForLoan retrieves all payments for a loan, most recent first.
func (s *SQLiteStore) GetPaymentsForLoan(loanID int64) ([]*models.Payment, error) {
	return queryPayments(s.db, loanID)
}

// GetLoanLedger reads the loan row and its payment history inside one read
// transaction so the two cannot tear across a concurrent payment.
func (s *SQLiteStore) GetLoanLedger(loanID int64) (*models.Loan, []*models.Payment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := scanLoan(tx.QueryRow(`SELECT ` + loanColumns + ` FROM loans WHERE id = ?`, loanID))
	if err != nil {
		return nil, nil, err
	}
	payments, err := queryPayments(tx, loanID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return loan, payments, nil
}

type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

func queryPayments(q querier, loanID int64) ([]*models.Payment, error) {
	rows, err := q.Query(
		`SELECT id, loan_id, amount, payment_type, remaining_balance, emis_left, payment_date
		FROM payments WHERE loan_id = ? ORDER BY payment_date DESC, id DESC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %d: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var paid time.Time
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &p.Type, &p.RemainingBalance, &p.EMIsLeft, &paid); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.PaymentDate = paid
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
