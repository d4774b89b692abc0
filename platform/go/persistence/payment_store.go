package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentsTable holds student invoices.
const PaymentsTable = "payments"

// Stored payment status values. Overdue is derived, never stored.
const (
	PaymentPending   = "PENDING"
	PaymentPaid      = "PAID"
	PaymentCancelled = "CANCELLED"
)

// PaymentRecord represents a payment row. DueDate is a civil day at UTC midnight.
type PaymentRecord struct {
	PaymentID     uuid.UUID       `db:"payment_id"`
	SchoolID      uuid.UUID       `db:"school_id"`
	StudentID     uuid.UUID       `db:"student_id"`
	InvoiceNumber string          `db:"invoice_number"`
	Amount        decimal.Decimal `db:"amount"`
	DueDate       time.Time       `db:"due_date"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
}

// IsOverdue reports whether the payment is overdue on day. It must agree with overdueClause.
func (p PaymentRecord) IsOverdue(day time.Time) bool {
	return p.DueDate.Before(day) && p.Status != PaymentPaid && p.Status != PaymentCancelled
}

// overdueClause is the SQL form of PaymentRecord.IsOverdue; $1 is the day and $2, $3 the settled statuses.
const overdueClause = "p.due_date < $1 AND p.status <> $2 AND p.status <> $3"

// PaymentWithStudent joins a payment with the student's account.
type PaymentWithStudent struct {
	Payment       PaymentRecord
	StudentUserID uuid.UUID
	StudentName   string
}

// PaymentStore provides access to payments.
type PaymentStore struct {
	db *DB
}

// NewPaymentStore creates a store; assumes migrations already created the table.
func NewPaymentStore(db *DB) (*PaymentStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &PaymentStore{db: db}, nil
}

const paymentColumns = "p.payment_id, p.school_id, p.student_id, p.invoice_number, p.amount::text, p.due_date, p.status, p.created_at"

// Create inserts a payment.
func (s *PaymentStore) Create(ctx context.Context, rec PaymentRecord) (PaymentRecord, error) {
	if rec.PaymentID == uuid.Nil {
		rec.PaymentID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = PaymentPending
	}
	query := fmt.Sprintf(`
        INSERT INTO %s AS p (payment_id, school_id, student_id, invoice_number, amount, due_date, status)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
        RETURNING %s
    `, PaymentsTable, paymentColumns)

	out, err := scanPayment(s.db.Conn(ctx).QueryRow(ctx, query,
		rec.PaymentID, rec.SchoolID, rec.StudentID, rec.InvoiceNumber, rec.Amount.StringFixed(2), rec.DueDate, rec.Status))
	if err != nil {
		return PaymentRecord{}, mapWriteError(err)
	}
	return out, nil
}

// ListPendingDueOn returns PENDING payments due exactly on day.
func (s *PaymentStore) ListPendingDueOn(ctx context.Context, day time.Time) ([]PaymentWithStudent, error) {
	query := fmt.Sprintf(`SELECT %s, st.user_id, st.full_name FROM %s p
        JOIN students st ON st.student_id = p.student_id
        WHERE p.status = $1 AND p.due_date = $2
        ORDER BY p.payment_id`, paymentColumns, PaymentsTable)
	return s.listWithStudent(ctx, query, PaymentPending, day)
}

// ListOverdue returns payments overdue on day.
func (s *PaymentStore) ListOverdue(ctx context.Context, day time.Time) ([]PaymentWithStudent, error) {
	query := fmt.Sprintf(`SELECT %s, st.user_id, st.full_name FROM %s p
        JOIN students st ON st.student_id = p.student_id
        WHERE %s
        ORDER BY p.due_date, p.payment_id`, paymentColumns, PaymentsTable, overdueClause)
	return s.listWithStudent(ctx, query, day, PaymentPaid, PaymentCancelled)
}

func (s *PaymentStore) listWithStudent(ctx context.Context, query string, args ...any) ([]PaymentWithStudent, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentWithStudent
	for rows.Next() {
		var item PaymentWithStudent
		var amount string
		p := &item.Payment
		if err := rows.Scan(&p.PaymentID, &p.SchoolID, &p.StudentID, &p.InvoiceNumber, &amount, &p.DueDate, &p.Status, &p.CreatedAt,
			&item.StudentUserID, &item.StudentName); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse payment amount: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (PaymentRecord, error) {
	var rec PaymentRecord
	var amount string
	if err := row.Scan(&rec.PaymentID, &rec.SchoolID, &rec.StudentID, &rec.InvoiceNumber, &amount, &rec.DueDate, &rec.Status, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentRecord{}, ErrNotFound
		}
		return PaymentRecord{}, err
	}
	var err error
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return PaymentRecord{}, fmt.Errorf("parse payment amount: %w", err)
	}
	return rec, nil
}
