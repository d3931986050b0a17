package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/refnum"
	"retailpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the transaction engine plus the catalog, cart and reporting
// operations built around it. All multi-row writes go through the
// repository's atomic CreateSale/CreateSupply; the service owns the
// business rules (discount policy, channel attribution, reference
// allocation) and never leaves partial state behind.
type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = time.Minute
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

// ValidateAvailability checks each proposed line against current stock.
// This is an advisory pre-check for callers that want early feedback; the
// authoritative check runs again inside the commit transaction, so two
// terminals passing this concurrently cannot oversell.
func (s *Service) ValidateAvailability(ctx context.Context, items []domain.SaleLine) error {
	for _, item := range items {
		if item.Quantity < 1 {
			return store.ErrInvalidRequest
		}
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: id %d", store.ErrProductNotFound, item.ProductID)
			}
			return err
		}
		if product.Stock < item.Quantity {
			return &store.InsufficientStockError{
				ProductID: item.ProductID,
				Available: product.Stock,
				Requested: item.Quantity,
			}
		}
	}
	return nil
}

// CommitSale commits a sale on either channel as one atomic unit.
//
// Staff-assisted: line items and unit prices come from the cashier's
// working cart, the discount is the cashier-entered percentage.
// Self-service: line items come from the customer's stored cart, unit
// prices are re-read from the live catalog at commit time, and the
// discount is the flat amount derived from the quantity tier.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	channel := req.Channel
	if (channel.CashierID > 0) == (channel.CustomerID > 0) {
		return domain.Sale{}, fmt.Errorf("%w: exactly one of cashier or customer must be set", store.ErrInvalidRequest)
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
			return *existing, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, err
		}
	}

	var items []domain.SaleLine
	var discountCents int64

	if channel.IsSelfService() {
		cartItems, err := s.repo.CartItems(ctx, channel.CustomerID)
		if err != nil {
			return domain.Sale{}, err
		}
		if len(cartItems) == 0 {
			return domain.Sale{}, store.ErrEmptyCart
		}

		totalQty := 0
		subtotal := int64(0)
		items = make([]domain.SaleLine, 0, len(cartItems))
		for _, cartItem := range cartItems {
			totalQty += cartItem.Quantity
			subtotal += cartItem.RetailPriceCents * int64(cartItem.Quantity)
			items = append(items, domain.SaleLine{ProductID: cartItem.ProductID, Quantity: cartItem.Quantity})
		}
		discountCents = TieredCartDiscount(totalQty, subtotal)
	} else {
		if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
			return domain.Sale{}, fmt.Errorf("%w: discount percent out of range", store.ErrInvalidRequest)
		}
		items = normalizeLines(req.Items)
		if len(items) == 0 {
			return domain.Sale{}, fmt.Errorf("%w: no sale items", store.ErrInvalidRequest)
		}

		subtotal := int64(0)
		for _, item := range items {
			if item.UnitPriceCents < 1 {
				return domain.Sale{}, fmt.Errorf("%w: missing unit price for product %d", store.ErrInvalidRequest, item.ProductID)
			}
			subtotal += item.UnitPriceCents * int64(item.Quantity)
		}
		discountCents = StaffPercentDiscount(req.DiscountPercent, subtotal)
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		Reference:      refnum.Sale(),
		SaleDate:       now,
		DiscountCents:  discountCents,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	if channel.IsSelfService() {
		customerID := channel.CustomerID
		sale.CustomerID = &customerID
	} else {
		cashierID := channel.CashierID
		sale.CashierID = &cashierID
	}

	created, err := s.repo.CreateSale(ctx, sale, items)
	if err != nil && errors.Is(err, store.ErrConflict) {
		// Best-effort reference collided within the same second; keep the
		// prefix+timestamp shape and retry once with a fresh suffix.
		sale.Reference = refnum.Sale()
		created, err = s.repo.CreateSale(ctx, sale, items)
	}
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_commit", "sale", created.Reference,
		fmt.Sprintf("total=%d,discount=%d,final=%d,items=%d", created.TotalCents, created.DiscountCents, created.FinalCents, len(created.Items)))

	return *created, nil
}

// CommitSupply records a supply receipt. It intentionally does not touch
// the product's stock count: the reference behavior only records the
// supply row, and restocking stays a separate manual step.
func (s *Service) CommitSupply(ctx context.Context, req domain.SupplyRequest) (domain.Supply, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleCashier) {
		return domain.Supply{}, fmt.Errorf("staff role required")
	}

	req.SupplierName = strings.TrimSpace(req.SupplierName)
	if req.SupplierName == "" || req.Quantity < 1 || req.PurchasePriceCents < 1 {
		return domain.Supply{}, store.ErrInvalidRequest
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Supply{}, fmt.Errorf("%w: id %d", store.ErrProductNotFound, req.ProductID)
		}
		return domain.Supply{}, err
	}

	now := time.Now().UTC()
	supply := domain.Supply{
		Reference:          refnum.Supply(),
		SupplierName:       req.SupplierName,
		ProductID:          product.ID,
		Quantity:           req.Quantity,
		PurchasePriceCents: req.PurchasePriceCents,
		TotalCents:         req.PurchasePriceCents * int64(req.Quantity),
		SupplyDate:         now,
		CreatedBy:          actor.UserID,
		CreatedAt:          now,
	}

	created, err := s.repo.CreateSupply(ctx, supply)
	if err != nil {
		return domain.Supply{}, err
	}

	s.logAudit(ctx, "supply_commit", "supply", created.Reference,
		fmt.Sprintf("product=%d,qty=%d,total=%d", created.ProductID, created.Quantity, created.TotalCents))

	return *created, nil
}

func (s *Service) ListSupplies(ctx context.Context) ([]domain.Supply, error) {
	return s.repo.ListSupplies(ctx)
}

func (s *Service) DeleteSupply(ctx context.Context, id int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	if err := s.repo.DeleteSupply(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "supply_delete", "supply", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// ListProductsInStock is the cashier-facing catalog: products with zero
// stock are hidden from the checkout screen.
func (s *Service) ListProductsInStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProductsInStock(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Article = strings.TrimSpace(req.Article)
	req.Name = strings.TrimSpace(req.Name)
	if req.Article == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidRequest
	}
	if req.PurchasePriceCents < 1 || req.RetailPriceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidRequest
	}

	now := time.Now().UTC()
	product := domain.Product{
		Article:            req.Article,
		Name:               req.Name,
		CategoryID:         req.CategoryID,
		PurchasePriceCents: req.PurchasePriceCents,
		RetailPriceCents:   req.RetailPriceCents,
		Stock:              req.InitialStock,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.Article,
		fmt.Sprintf("name=%s,retail=%d,stock=%d", created.Name, created.RetailPriceCents, created.Stock))

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Article != nil {
		article := strings.TrimSpace(*req.Article)
		if article == "" {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Article = article
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		updated.CategoryID = req.CategoryID
	}
	if req.PurchasePriceCents != nil {
		if *req.PurchasePriceCents < 1 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.RetailPriceCents != nil {
		if *req.RetailPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.RetailPriceCents = *req.RetailPriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Stock = *req.Stock
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.Article,
		fmt.Sprintf("retail=%d,stock=%d", saved.RetailPriceCents, saved.Stock))

	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Category{}, fmt.Errorf("admin role required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidRequest
	}
	created, err := s.repo.CreateCategory(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

// AddToCart stages a line for later self-service checkout. Adding a
// product already in the cart increments the quantity.
func (s *Service) AddToCart(ctx context.Context, userID int64, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	if _, err := s.repo.GetProductByID(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: id %d", store.ErrProductNotFound, productID)
		}
		return err
	}
	return s.repo.AddToCart(ctx, userID, productID, qty)
}

// UpdateCartQuantity sets the staged quantity; zero or below removes the
// line, matching the reference behavior.
func (s *Service) UpdateCartQuantity(ctx context.Context, userID int64, productID int64, qty int) error {
	if qty <= 0 {
		return s.repo.RemoveFromCart(ctx, userID, productID)
	}
	return s.repo.UpdateCartQuantity(ctx, userID, productID, qty)
}

func (s *Service) RemoveFromCart(ctx context.Context, userID int64, productID int64) error {
	return s.repo.RemoveFromCart(ctx, userID, productID)
}

func (s *Service) CartItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return s.repo.CartItems(ctx, userID)
}

func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	return s.repo.ClearCart(ctx, userID)
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) ListSalesByCashier(ctx context.Context, cashierID int64) ([]domain.Sale, error) {
	return s.repo.ListSalesByCashier(ctx, cashierID)
}

func (s *Service) ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	return s.repo.ListSalesByCustomer(ctx, customerID)
}

// ProfitReport aggregates committed sales over the inclusive date range.
// Cost is computed from the current product purchase price, not a
// historical snapshot, so the cost basis drifts when purchase prices
// change after the fact.
func (s *Service) ProfitReport(ctx context.Context, startDate string, endDate string) (domain.ProfitReport, error) {
	from, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return domain.ProfitReport{}, fmt.Errorf("%w: bad start date", store.ErrInvalidRequest)
	}
	toDay, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return domain.ProfitReport{}, fmt.Errorf("%w: bad end date", store.ErrInvalidRequest)
	}
	if toDay.Before(from) {
		return domain.ProfitReport{}, fmt.Errorf("%w: end date before start date", store.ErrInvalidRequest)
	}
	// Inclusive range: the exclusive upper bound is the day after endDate.
	to := toDay.Add(24 * time.Hour)

	cacheKey := "profit:" + startDate + ":" + endDate
	if cached, found, err := s.reports.Get(ctx, cacheKey); err == nil && found {
		return *cached, nil
	}

	report, err := s.repo.ProfitReport(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.ProfitReport{}, err
	}
	report.StartDate = startDate
	report.EndDate = endDate

	if err := s.reports.Set(ctx, cacheKey, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: failed to cache profit report: %v", err)
	}

	return report, nil
}

// CreateUser registers an account. The password arrives already hashed;
// the service never sees plaintext credentials.
func (s *Service) CreateUser(ctx context.Context, login string, passwordHash string, role domain.Role) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("admin role required")
	}

	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" || passwordHash == "" {
		return domain.User{}, store.ErrInvalidRequest
	}

	created, err := s.repo.CreateUser(ctx, domain.User{
		Login:     login,
		Password:  passwordHash,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", created.Login, "role="+string(created.Role))

	return *created, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidRequest
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Login: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorLogin: actor.Login,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// normalizeLines merges duplicate product entries and drops empty ones.
// The highest unit price wins on a duplicate, which cannot happen when the
// lines come from a single working cart.
func normalizeLines(items []domain.SaleLine) []domain.SaleLine {
	type agg struct {
		qty   int
		price int64
	}
	merged := make(map[int64]agg, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if item.ProductID < 1 || item.Quantity < 1 {
			continue
		}
		entry, seen := merged[item.ProductID]
		if !seen {
			order = append(order, item.ProductID)
		}
		entry.qty += item.Quantity
		if item.UnitPriceCents > entry.price {
			entry.price = item.UnitPriceCents
		}
		merged[item.ProductID] = entry
	}

	normalized := make([]domain.SaleLine, 0, len(merged))
	for _, productID := range order {
		entry := merged[productID]
		normalized = append(normalized, domain.SaleLine{
			ProductID:      productID,
			Quantity:       entry.qty,
			UnitPriceCents: entry.price,
		})
	}
	return normalized
}
