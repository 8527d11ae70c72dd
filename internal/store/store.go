package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventtix/tix-mercadopago/internal/tix"
)

// ErrNotFound is returned when a payment token resolves to no order.
var ErrNotFound = errors.New("store: not found")

// Store is the Postgres-backed implementation of the platform interfaces
// the gateway consumes: order lookup, attendee lookup and payment-result
// application.
type Store struct {
	Pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// GetOrder resolves a payment token to order contents.
func (s *Store) GetOrder(ctx context.Context, token string) (tix.Order, error) {
	var order tix.Order
	row := s.Pool.QueryRow(ctx,
		`SELECT token, total FROM orders WHERE token = $1`, token)
	if err := row.Scan(&order.Token, &order.Total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tix.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, token)
		}
		return tix.Order{}, fmt.Errorf("store: get order: %w", err)
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT name, quantity, price FROM order_items WHERE order_token = $1 ORDER BY id`, token)
	if err != nil {
		return tix.Order{}, fmt.Errorf("store: list order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it tix.LineItem
		if err := rows.Scan(&it.Name, &it.Quantity, &it.Price); err != nil {
			return tix.Order{}, fmt.Errorf("store: scan order item: %w", err)
		}
		order.Items = append(order.Items, it)
	}
	if err := rows.Err(); err != nil {
		return tix.Order{}, fmt.Errorf("store: iterate order items: %w", err)
	}
	return order, nil
}

// FindByPaymentToken returns the attendee records tied to a payment token.
func (s *Store) FindByPaymentToken(ctx context.Context, token string) ([]tix.Attendee, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, order_token, email, status FROM attendees WHERE order_token = $1 ORDER BY id`, token)
	if err != nil {
		return nil, fmt.Errorf("store: find attendees: %w", err)
	}
	defer rows.Close()
	var out []tix.Attendee
	for rows.Next() {
		var a tix.Attendee
		if err := rows.Scan(&a.ID, &a.PaymentToken, &a.Email, &a.Status); err != nil {
			return nil, fmt.Errorf("store: scan attendee: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate attendees: %w", err)
	}
	return out, nil
}

// PaymentResult applies a canonical status to the order and its attendees
// and appends an audit record, all in one transaction.
func (s *Store) PaymentResult(ctx context.Context, token string, status tix.PaymentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("store: invalid status %q", status)
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE token = $1`, token, string(status))
	if err != nil {
		return fmt.Errorf("store: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, token)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE attendees SET status = $2 WHERE order_token = $1`, token, string(status)); err != nil {
		return fmt.Errorf("store: update attendees: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO payment_events (order_token, status) VALUES ($1, $2)`, token, string(status)); err != nil {
		return fmt.Errorf("store: insert payment event: %w", err)
	}
	return tx.Commit(ctx)
}

// CreateOrder persists a new pending order with a freshly issued payment
// token and one attendee per ticket line.
func (s *Store) CreateOrder(ctx context.Context, total float64, items []tix.LineItem, emails []string) (string, error) {
	token := uuid.NewString()
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO orders (token, total, status) VALUES ($1, $2, $3)`,
		token, total, string(tix.StatusPending)); err != nil {
		return "", fmt.Errorf("store: insert order: %w", err)
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_token, name, quantity, price) VALUES ($1, $2, $3, $4)`,
			token, it.Name, it.Quantity, it.Price); err != nil {
			return "", fmt.Errorf("store: insert order item: %w", err)
		}
	}
	for _, email := range emails {
		if _, err := tx.Exec(ctx,
			`INSERT INTO attendees (id, order_token, email, status) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), token, email, string(tix.StatusPending)); err != nil {
			return "", fmt.Errorf("store: insert attendee: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return token, nil
}
