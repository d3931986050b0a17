package domain

import (
	"fmt"
	"time"
)

// Role is the closed set of user roles. Unknown role strings are rejected
// at parse time instead of silently falling through a string switch.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
	RoleClient  Role = "client"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleCashier, RoleClient:
		return Role(raw), nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

type Product struct {
	ID                 int64     `json:"id"`
	Article            string    `json:"article"`
	Name               string    `json:"name"`
	CategoryID         *int64    `json:"category_id,omitempty"`
	CategoryName       string    `json:"category_name,omitempty"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	RetailPriceCents   int64     `json:"retail_price_cents"`
	Stock              int       `json:"stock"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Article            string `json:"article"`
	Name               string `json:"name"`
	CategoryID         *int64 `json:"category_id,omitempty"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	RetailPriceCents   int64  `json:"retail_price_cents"`
	InitialStock       int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Article            *string `json:"article,omitempty"`
	Name               *string `json:"name,omitempty"`
	CategoryID         *int64  `json:"category_id,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	RetailPriceCents   *int64  `json:"retail_price_cents,omitempty"`
	Stock              *int    `json:"stock,omitempty"`
}

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Supply struct {
	ID                 int64     `json:"id"`
	Reference          string    `json:"reference"`
	SupplierName       string    `json:"supplier_name"`
	ProductID          int64     `json:"product_id"`
	ProductName        string    `json:"product_name,omitempty"`
	Quantity           int       `json:"quantity"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	TotalCents         int64     `json:"total_cents"`
	SupplyDate         time.Time `json:"supply_date"`
	CreatedBy          int64     `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}

type SupplyRequest struct {
	ProductID          int64  `json:"product_id"`
	Quantity           int    `json:"quantity"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	SupplierName       string `json:"supplier_name"`
}

type Sale struct {
	ID             int64      `json:"id"`
	Reference      string     `json:"reference"`
	SaleDate       time.Time  `json:"sale_date"`
	CashierID      *int64     `json:"cashier_id,omitempty"`
	CashierLogin   string     `json:"cashier_login,omitempty"`
	CustomerID     *int64     `json:"customer_id,omitempty"`
	CustomerLogin  string     `json:"customer_login,omitempty"`
	TotalCents     int64      `json:"total_cents"`
	DiscountCents  int64      `json:"discount_cents"`
	FinalCents     int64      `json:"final_cents"`
	IdempotencyKey string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	Items          []SaleItem `json:"items"`
}

type SaleItem struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineCents      int64  `json:"line_cents"`
}

type CartItem struct {
	UserID           int64     `json:"user_id"`
	ProductID        int64     `json:"product_id"`
	ProductName      string    `json:"product_name,omitempty"`
	RetailPriceCents int64     `json:"retail_price_cents,omitempty"`
	Quantity         int       `json:"quantity"`
	AddedAt          time.Time `json:"added_at"`
}

// SaleLine is one product+quantity entry of a proposed sale, before the
// engine re-reads authoritative stock. UnitPriceCents is only meaningful on
// the staff-assisted channel; the self-service channel always reprices from
// the live catalog at commit time.
type SaleLine struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents,omitempty"`
}

// Channel identifies the checkout path. Exactly one of CashierID or
// CustomerID is set: staff-assisted sales carry the cashier, self-service
// sales carry the customer whose cart is being drained.
type Channel struct {
	CashierID  int64
	CustomerID int64
}

func StaffAssisted(cashierID int64) Channel { return Channel{CashierID: cashierID} }

func SelfService(customerID int64) Channel { return Channel{CustomerID: customerID} }

func (c Channel) IsSelfService() bool { return c.CustomerID > 0 }

type SaleRequest struct {
	Channel Channel
	// Items is required on the staff-assisted channel and ignored on the
	// self-service channel, where the customer's cart is the item source.
	Items []SaleLine
	// DiscountPercent is the cashier-entered percentage (staff-assisted
	// only). The self-service discount is derived from the quantity tier.
	DiscountPercent float64
	// IdempotencyKey, when set, makes a replayed commit return the sale
	// created by the first attempt instead of writing a duplicate.
	IdempotencyKey string
}

type User struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	UserID      int64  `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the already-authenticated identity attached to a request
// context. The transaction engine performs no credential checks itself.
type Actor struct {
	UserID int64
	Login  string
	Role   Role
}

type PopularProduct struct {
	ProductID    int64  `json:"product_id"`
	Name         string `json:"name"`
	QuantitySold int    `json:"quantity_sold"`
}

type ProfitReport struct {
	StartDate         string           `json:"start_date"`
	EndDate           string           `json:"end_date"`
	TotalRevenueCents int64            `json:"total_revenue_cents"`
	TotalCostCents    int64            `json:"total_cost_cents"`
	TotalProfitCents  int64            `json:"total_profit_cents"`
	PopularProducts   []PopularProduct `json:"popular_products"`
}

type AuditLog struct {
	ID         int64     `json:"id"`
	ActorLogin string    `json:"actor_login"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
