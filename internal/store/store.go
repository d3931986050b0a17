package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidRequest  = errors.New("invalid request")
	// ErrConflict is returned when a write is rejected by a uniqueness
	// constraint (duplicate login, article, or sale reference).
	ErrConflict = errors.New("conflict")
)

// InsufficientStockError reports the exact shortfall so callers can show
// the cashier or customer which line blocked the commit.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// Repository is the persistence boundary shared by the Postgres and
// in-memory stores. CreateSale and CreateSupply are the only multi-row
// writes; both are all-or-nothing.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsInStock(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)

	AddToCart(ctx context.Context, userID int64, productID int64, qty int) error
	UpdateCartQuantity(ctx context.Context, userID int64, productID int64, qty int) error
	RemoveFromCart(ctx context.Context, userID int64, productID int64) error
	CartItems(ctx context.Context, userID int64) ([]domain.CartItem, error)
	ClearCart(ctx context.Context, userID int64) error

	// CreateSale validates stock, prices the self-service channel from the
	// live catalog, inserts the sale and its items, decrements stock, and
	// drains the customer cart, all inside one transaction. The sale passed
	// in carries the reference, date, channel attribution and discount; the
	// store fills ID, totals and item snapshots.
	CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleLine) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByCashier(ctx context.Context, cashierID int64) ([]domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error)

	CreateSupply(ctx context.Context, supply domain.Supply) (*domain.Supply, error)
	ListSupplies(ctx context.Context) ([]domain.Supply, error)
	DeleteSupply(ctx context.Context, id int64) error

	ProfitReport(ctx context.Context, from time.Time, to time.Time) (domain.ProfitReport, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserPassword(ctx context.Context, login string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
