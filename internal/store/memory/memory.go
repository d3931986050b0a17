// Package memory is the in-process Repository used for dev mode and
// tests. It mirrors the transactional semantics of the Postgres store: a
// sale either applies completely (rows, stock decrement, cart drain) or
// not at all.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	categories      map[int64]domain.Category
	cartsByUser     map[int64][]domain.CartItem
	salesByID       map[int64]domain.Sale
	salesByRef      map[string]int64
	salesByIdem     map[string]int64
	suppliesByID    map[int64]domain.Supply
	usersByID       map[int64]domain.User
	usersByLogin    map[string]int64
	auditLogs       []domain.AuditLog
	nextProductID   int64
	nextCategoryID  int64
	nextSaleID      int64
	nextSupplyID    int64
	nextUserID      int64
	nextAuditID     int64
}

// seedUsers builds the initial dev/demo accounts, one per role.
// Credentials come from SEED_ADMIN_PASSWORD, SEED_CASHIER_PASSWORD and
// SEED_CLIENT_PASSWORD; hardcoded dev defaults are used otherwise with a
// warning. Production deployments use Postgres and never hit this path.
func seedUsers(now time.Time) map[int64]domain.User {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	clientPwd := envOr("SEED_CLIENT_PASSWORD", "client123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_*_PASSWORD to override.")
	}

	users := map[int64]domain.User{}
	for i, u := range []struct {
		login    string
		password string
		role     domain.Role
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
		{"client", clientPwd, domain.RoleClient},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.login, err)
		}
		id := int64(i + 1)
		users[id] = domain.User{
			ID:        id,
			Login:     u.login,
			Password:  string(hash),
			Role:      u.role,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: 1, Name: "Бакалея", CreatedAt: now},
		{ID: 2, Name: "Напитки", CreatedAt: now},
		{ID: 3, Name: "Хозтовары", CreatedAt: now},
	}

	catID := func(id int64) *int64 { return &id }
	products := []domain.Product{
		{ID: 1, Article: "ART-0001", Name: "Гречка 900г", CategoryID: catID(1), PurchasePriceCents: 5400, RetailPriceCents: 8900, Stock: 40},
		{ID: 2, Article: "ART-0002", Name: "Макароны 450г", CategoryID: catID(1), PurchasePriceCents: 3100, RetailPriceCents: 5500, Stock: 60},
		{ID: 3, Article: "ART-0003", Name: "Чай чёрный 100п", CategoryID: catID(2), PurchasePriceCents: 12000, RetailPriceCents: 19900, Stock: 25},
		{ID: 4, Article: "ART-0004", Name: "Вода 1.5л", CategoryID: catID(2), PurchasePriceCents: 1800, RetailPriceCents: 3900, Stock: 120},
		{ID: 5, Article: "ART-0005", Name: "Мыло хозяйственное", CategoryID: catID(3), PurchasePriceCents: 2500, RetailPriceCents: 4500, Stock: 35},
		{ID: 6, Article: "ART-0006", Name: "Губки 5шт", CategoryID: catID(3), PurchasePriceCents: 2000, RetailPriceCents: 3500, Stock: 50},
	}

	productMap := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}
	categoryMap := make(map[int64]domain.Category, len(categories))
	for _, c := range categories {
		categoryMap[c.ID] = c
	}

	users := seedUsers(now)
	usersByLogin := make(map[string]int64, len(users))
	for id, u := range users {
		usersByLogin[u.Login] = id
	}

	return &Store{
		products:       productMap,
		categories:     categoryMap,
		cartsByUser:    make(map[int64][]domain.CartItem),
		salesByID:      make(map[int64]domain.Sale),
		salesByRef:     make(map[string]int64),
		salesByIdem:    make(map[string]int64),
		suppliesByID:   make(map[int64]domain.Supply),
		usersByID:      users,
		usersByLogin:   usersByLogin,
		auditLogs:      make([]domain.AuditLog, 0, 128),
		nextProductID:  int64(len(products)),
		nextCategoryID: int64(len(categories)),
		nextSupplyID:   0,
		nextUserID:     int64(len(users)),
	}
}

func (s *Store) categoryName(id *int64) string {
	if id == nil {
		return ""
	}
	if category, ok := s.categories[*id]; ok {
		return category.Name
	}
	return ""
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProductsLocked(false), nil
}

func (s *Store) ListProductsInStock(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProductsLocked(true), nil
}

func (s *Store) listProductsLocked(inStockOnly bool) []domain.Product {
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if inStockOnly && p.Stock < 1 {
			continue
		}
		p.CategoryName = s.categoryName(p.CategoryID)
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CategoryName = s.categoryName(product.CategoryID)
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Article == "" || product.Name == "" || product.RetailPriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidRequest
	}
	for _, existing := range s.products {
		if existing.Article == product.Article {
			return nil, store.ErrConflict
		}
	}

	s.nextProductID++
	product.ID = s.nextProductID
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.Article == "" || product.Name == "" || product.RetailPriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidRequest
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

// DeleteProduct refuses to remove a product that carts, sales or supplies
// still reference.
func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, cart := range s.cartsByUser {
		for _, item := range cart {
			if item.ProductID == id {
				return fmt.Errorf("%w: product is referenced by a cart", store.ErrConflict)
			}
		}
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product is referenced by a sale", store.ErrConflict)
			}
		}
	}
	for _, supply := range s.suppliesByID {
		if supply.ProductID == id {
			return fmt.Errorf("%w: product is referenced by a supply", store.ErrConflict)
		}
	}

	delete(s.products, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, name string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, store.ErrInvalidRequest
	}
	for _, existing := range s.categories {
		if existing.Name == name {
			return nil, store.ErrConflict
		}
	}

	s.nextCategoryID++
	category := domain.Category{ID: s.nextCategoryID, Name: name, CreatedAt: time.Now().UTC()}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) AddToCart(_ context.Context, userID int64, productID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return store.ErrInvalidRequest
	}
	if _, exists := s.products[productID]; !exists {
		return store.ErrNotFound
	}

	cart := s.cartsByUser[userID]
	for i, item := range cart {
		if item.ProductID == productID {
			cart[i].Quantity += qty
			return nil
		}
	}
	s.cartsByUser[userID] = append(cart, domain.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		AddedAt:   time.Now().UTC(),
	})
	return nil
}

func (s *Store) UpdateCartQuantity(_ context.Context, userID int64, productID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return store.ErrInvalidRequest
	}
	cart := s.cartsByUser[userID]
	for i, item := range cart {
		if item.ProductID == productID {
			cart[i].Quantity = qty
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) RemoveFromCart(_ context.Context, userID int64, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartsByUser[userID]
	for i, item := range cart {
		if item.ProductID == productID {
			s.cartsByUser[userID] = append(cart[:i], cart[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CartItems(_ context.Context, userID int64) ([]domain.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart := s.cartsByUser[userID]
	items := make([]domain.CartItem, 0, len(cart))
	for _, item := range cart {
		product, exists := s.products[item.ProductID]
		if exists {
			item.ProductName = product.Name
			item.RetailPriceCents = product.RetailPriceCents
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.CartItem) int {
		return b.AddedAt.Compare(a.AddedAt)
	})
	return items, nil
}

func (s *Store) ClearCart(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cartsByUser, userID)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, items []domain.SaleLine) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if existingID, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			existing := s.salesByID[existingID]
			return &existing, nil
		}
	}
	if _, exists := s.salesByRef[sale.Reference]; exists {
		return nil, store.ErrConflict
	}

	selfService := sale.CustomerID != nil
	if selfService {
		cart := s.cartsByUser[*sale.CustomerID]
		if len(cart) == 0 {
			return nil, store.ErrEmptyCart
		}
		items = make([]domain.SaleLine, 0, len(cart))
		for _, cartItem := range cart {
			items = append(items, domain.SaleLine{ProductID: cartItem.ProductID, Quantity: cartItem.Quantity})
		}
	}
	if len(items) == 0 {
		return nil, store.ErrInvalidRequest
	}

	// Validate everything before mutating, so a failed sale leaves no
	// partial state behind.
	saleItems := make([]domain.SaleItem, 0, len(items))
	subtotal := int64(0)
	for _, line := range items {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidRequest
		}
		product, exists := s.products[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: id %d", store.ErrProductNotFound, line.ProductID)
		}
		if product.Stock < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: line.ProductID,
				Available: product.Stock,
				Requested: line.Quantity,
			}
		}

		unitPrice := line.UnitPriceCents
		if selfService {
			unitPrice = product.RetailPriceCents
		}
		if unitPrice < 1 {
			return nil, store.ErrInvalidRequest
		}

		lineCents := unitPrice * int64(line.Quantity)
		saleItems = append(saleItems, domain.SaleItem{
			ProductID:      line.ProductID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: unitPrice,
			LineCents:      lineCents,
		})
		subtotal += lineCents
	}

	if sale.DiscountCents < 0 {
		return nil, store.ErrInvalidRequest
	}
	if sale.DiscountCents > subtotal {
		sale.DiscountCents = subtotal
	}
	sale.TotalCents = subtotal
	sale.FinalCents = subtotal - sale.DiscountCents
	sale.Items = saleItems
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = sale.CreatedAt
	}
	if sale.CashierID != nil {
		sale.CashierLogin = s.loginByIDLocked(*sale.CashierID)
	}
	if sale.CustomerID != nil {
		sale.CustomerLogin = s.loginByIDLocked(*sale.CustomerID)
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID

	for _, item := range saleItems {
		product := s.products[item.ProductID]
		product.Stock -= item.Quantity
		product.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = product
	}
	if selfService {
		delete(s.cartsByUser, *sale.CustomerID)
	}

	s.salesByID[sale.ID] = sale
	s.salesByRef[sale.Reference] = sale.ID
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}

	created := sale
	return &created, nil
}

func (s *Store) loginByIDLocked(id int64) string {
	if user, ok := s.usersByID[id]; ok {
		return user.Login
	}
	return ""
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.salesByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale := s.salesByID[id]
	return &sale, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSalesLocked(func(domain.Sale) bool { return true }), nil
}

func (s *Store) ListSalesByCashier(_ context.Context, cashierID int64) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSalesLocked(func(sale domain.Sale) bool {
		return sale.CashierID != nil && *sale.CashierID == cashierID
	}), nil
}

func (s *Store) ListSalesByCustomer(_ context.Context, customerID int64) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSalesLocked(func(sale domain.Sale) bool {
		return sale.CustomerID != nil && *sale.CustomerID == customerID
	}), nil
}

func (s *Store) listSalesLocked(keep func(domain.Sale) bool) []domain.Sale {
	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if keep(sale) {
			sales = append(sales, sale)
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.SaleDate.Compare(a.SaleDate)
	})
	return sales
}

func (s *Store) CreateSupply(_ context.Context, supply domain.Supply) (*domain.Supply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supply.Quantity < 1 || supply.PurchasePriceCents < 1 || supply.SupplierName == "" {
		return nil, store.ErrInvalidRequest
	}
	product, exists := s.products[supply.ProductID]
	if !exists {
		return nil, fmt.Errorf("%w: id %d", store.ErrProductNotFound, supply.ProductID)
	}

	s.nextSupplyID++
	supply.ID = s.nextSupplyID
	supply.ProductName = product.Name
	if supply.CreatedAt.IsZero() {
		supply.CreatedAt = time.Now().UTC()
	}
	// Recording a supply does not adjust product stock; see the service
	// documentation for the rationale.
	s.suppliesByID[supply.ID] = supply

	created := supply
	return &created, nil
}

func (s *Store) ListSupplies(_ context.Context) ([]domain.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplies := make([]domain.Supply, 0, len(s.suppliesByID))
	for _, supply := range s.suppliesByID {
		supplies = append(supplies, supply)
	}
	slices.SortFunc(supplies, func(a, b domain.Supply) int {
		return b.SupplyDate.Compare(a.SupplyDate)
	})
	return supplies, nil
}

func (s *Store) DeleteSupply(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.suppliesByID, id)
	return nil
}

func (s *Store) ProfitReport(_ context.Context, from time.Time, to time.Time) (domain.ProfitReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.ProfitReport{PopularProducts: make([]domain.PopularProduct, 0, 10)}
	qtyByProduct := make(map[int64]int)

	for _, sale := range s.salesByID {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		for _, item := range sale.Items {
			report.TotalRevenueCents += item.LineCents
			// Cost basis is the current purchase price, not a snapshot
			// taken at sale time.
			if product, exists := s.products[item.ProductID]; exists {
				report.TotalCostCents += product.PurchasePriceCents * int64(item.Quantity)
			}
			qtyByProduct[item.ProductID] += item.Quantity
		}
	}
	report.TotalProfitCents = report.TotalRevenueCents - report.TotalCostCents

	for productID, qty := range qtyByProduct {
		name := ""
		if product, exists := s.products[productID]; exists {
			name = product.Name
		}
		report.PopularProducts = append(report.PopularProducts, domain.PopularProduct{
			ProductID:    productID,
			Name:         name,
			QuantitySold: qty,
		})
	}
	slices.SortFunc(report.PopularProducts, func(a, b domain.PopularProduct) int {
		if a.QuantitySold != b.QuantitySold {
			return b.QuantitySold - a.QuantitySold
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(report.PopularProducts) > 10 {
		report.PopularProducts = report.PopularProducts[:10]
	}

	return report, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Login == "" || user.Password == "" {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.usersByLogin[user.Login]; exists {
		return nil, store.ErrConflict
	}

	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.usersByLogin[user.Login] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.usersByLogin[login]
	if !exists {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.Login, b.Login)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, login string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.usersByLogin[login]
	if !exists {
		return store.ErrNotFound
	}
	user := s.usersByID[id]
	user.Password = password
	s.usersByID[id] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	entry.ID = s.nextAuditID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
