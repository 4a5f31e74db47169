package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/pricing"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) InsertOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, order_number, subtotal, tax, shipping, discount, total,
	            payment_method, payment_status, shipping_address, billing_address, notes, user_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.Subtotal,
		order.Tax,
		order.Shipping,
		order.Discount,
		order.Total,
		order.PaymentMethod,
		order.PaymentStatus,
		order.ShippingAddress,
		order.BillingAddress,
		order.Notes,
		order.UserID)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (r *Repository) InsertOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `INSERT INTO order_items (order_id, product_id, name, price, quantity, is_gift_card)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	for _, item := range items {
		var productID sql.NullInt64
		if item.ProductID != 0 {
			productID = sql.NullInt64{Int64: item.ProductID, Valid: true}
		}
		_, err := r.db.ExecContext(ctx, query,
			item.OrderID, productID, item.Name, item.Price, item.Quantity, item.IsGiftCard)
		if err != nil {
			return fmt.Errorf("insert order item %q: %w", item.Name, err)
		}
	}
	return nil
}

func (r *Repository) InsertInvoice(ctx context.Context, invoice *domain.Invoice) error {
	query := `INSERT INTO invoices (invoice_number, order_id, subtotal, tax, shipping, discount, total,
	            payment_method, payment_status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := r.db.ExecContext(ctx, query,
		invoice.InvoiceNumber,
		invoice.OrderID,
		invoice.Subtotal,
		invoice.Tax,
		invoice.Shipping,
		invoice.Discount,
		invoice.Total,
		invoice.PaymentMethod,
		invoice.PaymentStatus)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (r *Repository) UpdateInvoicePayment(ctx context.Context, invoiceNumber string, method domain.PaymentMethod, status domain.PaymentStatus) error {
	query := `UPDATE invoices SET payment_method = $2, payment_status = $3 WHERE invoice_number = $1`

	res, err := r.db.ExecContext(ctx, query, invoiceNumber, method, status)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invoice payment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	query := `SELECT id, order_number, subtotal, tax, shipping, discount, total,
	            payment_method, payment_status, shipping_address, billing_address, notes, user_id, created_at
	          FROM orders WHERE order_number = $1`

	var order domain.Order
	var userID sql.NullString
	err := r.db.QueryRowContext(ctx, query, orderNumber).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.Discount,
		&order.Total,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.ShippingAddress,
		&order.BillingAddress,
		&order.Notes,
		&userID,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by number: %w", err)
	}
	if userID.Valid {
		order.UserID = &userID.String
	}
	return &order, nil
}

func (r *Repository) OrderItemsByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `SELECT order_id, COALESCE(product_id, 0), name, price, quantity, is_gift_card
	          FROM order_items WHERE order_id = $1`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.IsGiftCard); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// OrdersWithoutItems lists orders whose item insert failed after the order
// row was committed. A repair sweep can re-derive items or refund manually.
func (r *Repository) OrdersWithoutItems(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT o.id, o.order_number, o.subtotal, o.tax, o.shipping, o.discount, o.total,
	            o.payment_method, o.payment_status, o.shipping_address, o.billing_address, o.notes, o.user_id, o.created_at
	          FROM orders o
	          LEFT JOIN order_items i ON i.order_id = o.id
	          WHERE i.order_id IS NULL
	          ORDER BY o.created_at
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders without items: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		var userID sql.NullString
		if err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.Subtotal, &order.Tax, &order.Shipping,
			&order.Discount, &order.Total, &order.PaymentMethod, &order.PaymentStatus,
			&order.ShippingAddress, &order.BillingAddress, &order.Notes, &userID, &order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if userID.Valid {
			order.UserID = &userID.String
		}
		orders = append(orders, &order)
	}
	return orders, rows.Err()
}

func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT code, discount_type, discount_value, min_purchase, max_uses, times_used,
	            COALESCE(product_id, 0), active, expires_at
	          FROM coupons WHERE code = $1`

	var coupon domain.Coupon
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&coupon.MinPurchase,
		&coupon.MaxUses,
		&coupon.TimesUsed,
		&coupon.ProductID,
		&coupon.Active,
		&expires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon by code: %w", err)
	}
	if expires.Valid {
		coupon.ExpiresAt = &expires.Time
	}
	return &coupon, nil
}

func (r *Repository) IncrementCouponUsage(ctx context.Context, code string) error {
	query := `UPDATE coupons SET times_used = times_used + 1 WHERE code = $1`

	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment coupon usage rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *Repository) MarkRedemptionUsed(ctx context.Context, couponCode string) error {
	query := `UPDATE loyalty_redemptions SET used = TRUE, used_at = NOW() WHERE coupon_code = $1 AND NOT used`

	if _, err := r.db.ExecContext(ctx, query, couponCode); err != nil {
		return fmt.Errorf("mark redemption used: %w", err)
	}
	return nil
}

func (r *Repository) TaxSettings(ctx context.Context) (pricing.TaxSettings, error) {
	query := `SELECT tax_enabled, tax_rate FROM settings LIMIT 1`

	var settings pricing.TaxSettings
	err := r.db.QueryRowContext(ctx, query).Scan(&settings.Enabled, &settings.Rate)
	if errors.Is(err, sql.ErrNoRows) {
		// no settings row means tax was never configured; charge none
		return pricing.TaxSettings{}, nil
	}
	if err != nil {
		return pricing.TaxSettings{}, fmt.Errorf("query tax settings: %w", err)
	}
	return settings, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
