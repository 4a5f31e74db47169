package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/pricing"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrDuplicateReference means an order with the same order number was
	// already persisted. The unique index is what stops two contexts racing
	// on the same pending order from both creating one.
	ErrDuplicateReference = errors.New("order with this payment reference already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Store interface {
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertOrderItems(ctx context.Context, items []domain.OrderItem) error
	InsertInvoice(ctx context.Context, invoice *domain.Invoice) error
	UpdateInvoicePayment(ctx context.Context, invoiceNumber string, method domain.PaymentMethod, status domain.PaymentStatus) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	OrderItemsByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	OrdersWithoutItems(ctx context.Context, limit int) ([]*domain.Order, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	IncrementCouponUsage(ctx context.Context, code string) error
	MarkRedemptionUsed(ctx context.Context, couponCode string) error
	TaxSettings(ctx context.Context) (pricing.TaxSettings, error)
	RunMigrations(*Credentials) error
	Close() error
}
