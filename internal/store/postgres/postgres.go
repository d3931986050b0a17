package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, false)
}

func (s *Store) ListProductsInStock(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, true)
}

func (s *Store) listProducts(ctx context.Context, inStockOnly bool) ([]domain.Product, error) {
	query := `
		SELECT p.id, p.article, p.name, p.category_id, COALESCE(c.name, ''),
		       p.purchase_price_cents, p.retail_price_cents, p.stock, p.created_at, p.updated_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
	`
	if inStockOnly {
		query += ` WHERE p.stock > 0`
	}
	query += ` ORDER BY p.name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		var categoryID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Article, &p.Name, &categoryID, &p.CategoryName,
			&p.PurchasePriceCents, &p.RetailPriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if categoryID.Valid {
			id := categoryID.Int64
			p.CategoryID = &id
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	var categoryID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.article, p.name, p.category_id, COALESCE(c.name, ''),
		       p.purchase_price_cents, p.retail_price_cents, p.stock, p.created_at, p.updated_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.Article, &p.Name, &categoryID, &p.CategoryName,
		&p.PurchasePriceCents, &p.RetailPriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if categoryID.Valid {
		cid := categoryID.Int64
		p.CategoryID = &cid
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Article == "" || product.Name == "" || product.RetailPriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidRequest
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (article, name, category_id, purchase_price_cents, retail_price_cents, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING id, created_at, updated_at
	`, product.Article, product.Name, nullInt64Ptr(product.CategoryID), product.PurchasePriceCents,
		product.RetailPriceCents, product.Stock).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Article == "" || product.Name == "" || product.RetailPriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET article = $1, name = $2, category_id = $3, purchase_price_cents = $4,
		    retail_price_cents = $5, stock = $6, updated_at = now()
		WHERE id = $7
	`, product.Article, product.Name, nullInt64Ptr(product.CategoryID), product.PurchasePriceCents,
		product.RetailPriceCents, product.Stock, product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		// Sales, supplies and carts reference products with RESTRICT
		// foreign keys; a blocked delete surfaces as a conflict.
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: product is referenced by existing records", store.ErrConflict)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	if name == "" {
		return nil, store.ErrInvalidRequest
	}

	var category domain.Category
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, created_at)
		VALUES ($1, now())
		RETURNING id, name, created_at
	`, name).Scan(&category.ID, &category.Name, &category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	return &category, nil
}

func (s *Store) AddToCart(ctx context.Context, userID int64, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, userID, productID, qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) UpdateCartQuantity(ctx context.Context, userID int64, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $1
		WHERE user_id = $2 AND product_id = $3
	`, qty, userID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveFromCart(ctx context.Context, userID int64, productID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CartItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.user_id, ci.product_id, p.name, p.retail_price_cents, ci.quantity, ci.added_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0, 16)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.UserID, &item.ProductID, &item.ProductName,
			&item.RetailPriceCents, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleLine) (*domain.Sale, error) {
	if sale.Reference == "" {
		return nil, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	selfService := sale.CustomerID != nil
	if selfService {
		cartRows, err := pgTx.QueryContext(ctx, `
			SELECT product_id, quantity
			FROM cart_items
			WHERE user_id = $1
		`, *sale.CustomerID)
		if err != nil {
			return nil, err
		}
		items = items[:0]
		for cartRows.Next() {
			var line domain.SaleLine
			if err := cartRows.Scan(&line.ProductID, &line.Quantity); err != nil {
				_ = cartRows.Close()
				return nil, err
			}
			items = append(items, line)
		}
		if err := cartRows.Err(); err != nil {
			_ = cartRows.Close()
			return nil, err
		}
		_ = cartRows.Close()
		if len(items) == 0 {
			return nil, store.ErrEmptyCart
		}
	}
	if len(items) == 0 {
		return nil, store.ErrInvalidRequest
	}

	ids := uniqueProductIDs(items)
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, retail_price_cents, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	type productState struct {
		name             string
		retailPriceCents int64
		stock            int
	}
	productMap := make(map[int64]productState, len(ids))
	for productRows.Next() {
		var id int64
		var p productState
		if err := productRows.Scan(&id, &p.name, &p.retailPriceCents, &p.stock); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	subtotal := int64(0)
	saleItems := make([]domain.SaleItem, 0, len(items))
	for _, line := range items {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidRequest
		}
		product, exists := productMap[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: id %d", store.ErrProductNotFound, line.ProductID)
		}
		if product.stock < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: line.ProductID,
				Available: product.stock,
				Requested: line.Quantity,
			}
		}

		unitPrice := line.UnitPriceCents
		if selfService {
			unitPrice = product.retailPriceCents
		}
		if unitPrice < 1 {
			return nil, store.ErrInvalidRequest
		}

		lineCents := unitPrice * int64(line.Quantity)
		saleItems = append(saleItems, domain.SaleItem{
			ProductID:      line.ProductID,
			ProductName:    product.name,
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

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (reference, sale_date, cashier_id, customer_id, total_cents,
		                   discount_cents, final_cents, idempotency_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, sale.Reference, sale.SaleDate, nullInt64Ptr(sale.CashierID), nullInt64Ptr(sale.CustomerID),
		sale.TotalCents, sale.DiscountCents, sale.FinalCents, nullIfEmpty(sale.IdempotencyKey),
		sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		if isUniqueViolation(err) {
			if sale.IdempotencyKey != "" {
				existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
				if lookupErr == nil {
					return existing, nil
				}
			}
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, item := range saleItems {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price_cents, line_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.ProductID, item.Quantity, item.UnitPriceCents, item.LineCents)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return nil, err
		}
	}

	if selfService {
		_, err = pgTx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, *sale.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	if sale.CashierID != nil {
		sale.CashierLogin = s.loginByID(ctx, *sale.CashierID)
	}
	if sale.CustomerID != nil {
		sale.CustomerLogin = s.loginByID(ctx, *sale.CustomerID)
	}

	created := sale
	return &created, nil
}

func (s *Store) loginByID(ctx context.Context, id int64) string {
	var login string
	err := s.db.QueryRowContext(ctx, `SELECT login FROM users WHERE id = $1`, id).Scan(&login)
	if err != nil {
		return ""
	}
	return login
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "s.idempotency_key = $1", key)
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.findSale(ctx, "s.id = $1", id)
}

func (s *Store) findSale(ctx context.Context, where string, value any) (*domain.Sale, error) {
	var sale domain.Sale
	var cashierID, customerID sql.NullInt64
	var cashierLogin, customerLogin sql.NullString
	var idempotencyKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.reference, s.sale_date, s.cashier_id, u1.login, s.customer_id, u2.login,
		       s.total_cents, s.discount_cents, s.final_cents, s.idempotency_key, s.created_at
		FROM sales s
		LEFT JOIN users u1 ON u1.id = s.cashier_id
		LEFT JOIN users u2 ON u2.id = s.customer_id
		WHERE `+where, value).Scan(&sale.ID, &sale.Reference, &sale.SaleDate, &cashierID, &cashierLogin,
		&customerID, &customerLogin, &sale.TotalCents, &sale.DiscountCents, &sale.FinalCents,
		&idempotencyKey, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	applySaleNullables(&sale, cashierID, cashierLogin, customerID, customerLogin, idempotencyKey)

	items, err := s.saleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	return &sale, nil
}

func (s *Store) saleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, p.name, si.quantity, si.unit_price_cents, si.line_cents
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
		ORDER BY si.id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPriceCents, &item.LineCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.listSales(ctx, "", nil)
}

func (s *Store) ListSalesByCashier(ctx context.Context, cashierID int64) ([]domain.Sale, error) {
	return s.listSales(ctx, "WHERE s.cashier_id = $1", []any{cashierID})
}

func (s *Store) ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	return s.listSales(ctx, "WHERE s.customer_id = $1", []any{customerID})
}

func (s *Store) listSales(ctx context.Context, where string, args []any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.reference, s.sale_date, s.cashier_id, u1.login, s.customer_id, u2.login,
		       s.total_cents, s.discount_cents, s.final_cents, s.idempotency_key, s.created_at
		FROM sales s
		LEFT JOIN users u1 ON u1.id = s.cashier_id
		LEFT JOIN users u2 ON u2.id = s.customer_id
		`+where+`
		ORDER BY s.sale_date DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var cashierID, customerID sql.NullInt64
		var cashierLogin, customerLogin sql.NullString
		var idempotencyKey sql.NullString
		if err := rows.Scan(&sale.ID, &sale.Reference, &sale.SaleDate, &cashierID, &cashierLogin,
			&customerID, &customerLogin, &sale.TotalCents, &sale.DiscountCents, &sale.FinalCents,
			&idempotencyKey, &sale.CreatedAt); err != nil {
			return nil, err
		}
		applySaleNullables(&sale, cashierID, cashierLogin, customerID, customerLogin, idempotencyKey)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.saleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}

	return sales, nil
}

func applySaleNullables(sale *domain.Sale, cashierID sql.NullInt64, cashierLogin sql.NullString,
	customerID sql.NullInt64, customerLogin sql.NullString, idempotencyKey sql.NullString) {
	if cashierID.Valid {
		id := cashierID.Int64
		sale.CashierID = &id
	}
	if cashierLogin.Valid {
		sale.CashierLogin = cashierLogin.String
	}
	if customerID.Valid {
		id := customerID.Int64
		sale.CustomerID = &id
	}
	if customerLogin.Valid {
		sale.CustomerLogin = customerLogin.String
	}
	if idempotencyKey.Valid {
		sale.IdempotencyKey = idempotencyKey.String
	}
}

func (s *Store) CreateSupply(ctx context.Context, supply domain.Supply) (*domain.Supply, error) {
	if supply.Quantity < 1 || supply.PurchasePriceCents < 1 || supply.SupplierName == "" {
		return nil, store.ErrInvalidRequest
	}

	// Supplies are a bookkeeping record only: product stock is managed
	// through the product editor, never adjusted here.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO supplies (reference, supplier_name, product_id, quantity,
		                      purchase_price_cents, total_cents, supply_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		RETURNING id, created_at
	`, supply.Reference, supply.SupplierName, supply.ProductID, supply.Quantity,
		supply.PurchasePriceCents, supply.TotalCents, supply.SupplyDate, supply.CreatedBy).
		Scan(&supply.ID, &supply.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: id %d", store.ErrProductNotFound, supply.ProductID)
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := supply
	return &created, nil
}

func (s *Store) ListSupplies(ctx context.Context) ([]domain.Supply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.reference, sp.supplier_name, sp.product_id, p.name,
		       sp.quantity, sp.purchase_price_cents, sp.total_cents, sp.supply_date,
		       sp.created_by, sp.created_at
		FROM supplies sp
		JOIN products p ON p.id = sp.product_id
		ORDER BY sp.supply_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	supplies := make([]domain.Supply, 0, 64)
	for rows.Next() {
		var supply domain.Supply
		if err := rows.Scan(&supply.ID, &supply.Reference, &supply.SupplierName, &supply.ProductID,
			&supply.ProductName, &supply.Quantity, &supply.PurchasePriceCents, &supply.TotalCents,
			&supply.SupplyDate, &supply.CreatedBy, &supply.CreatedAt); err != nil {
			return nil, err
		}
		supplies = append(supplies, supply)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return supplies, nil
}

func (s *Store) DeleteSupply(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM supplies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ProfitReport(ctx context.Context, from time.Time, to time.Time) (domain.ProfitReport, error) {
	report := domain.ProfitReport{PopularProducts: make([]domain.PopularProduct, 0, 10)}

	// Cost basis is the product's current purchase price, not the price at
	// the moment of sale.
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.line_cents), 0),
		       COALESCE(SUM(p.purchase_price_cents * si.quantity), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN products p ON p.id = si.product_id
		WHERE s.sale_date >= $1 AND s.sale_date < $2
	`, from, to).Scan(&report.TotalRevenueCents, &report.TotalCostCents)
	if err != nil {
		return report, err
	}
	report.TotalProfitCents = report.TotalRevenueCents - report.TotalCostCents

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, p.name, SUM(si.quantity)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN products p ON p.id = si.product_id
		WHERE s.sale_date >= $1 AND s.sale_date < $2
		GROUP BY si.product_id, p.name
		ORDER BY SUM(si.quantity) DESC, p.name
		LIMIT 10
	`, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var popular domain.PopularProduct
		if err := rows.Scan(&popular.ProductID, &popular.Name, &popular.QuantitySold); err != nil {
			return report, err
		}
		report.PopularProducts = append(report.PopularProducts, popular)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Login == "" || user.Password == "" {
		return nil, store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (login, password, role, created_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, user.Login, user.Password, string(user.Role), user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	var user domain.User
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, login, password, role, created_at
		FROM users
		WHERE login = $1
	`, login).Scan(&user.ID, &user.Login, &user.Password, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, login, password, role, created_at
		FROM users
		ORDER BY login
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 32)
	for rows.Next() {
		var user domain.User
		var role string
		if err := rows.Scan(&user.ID, &user.Login, &user.Password, &role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = domain.Role(role)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, login string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $1
		WHERE login = $2
	`, password, login)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_login, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ActorLogin, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_login, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorLogin, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func uniqueProductIDs(items []domain.SaleLine) []int64 {
	set := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if item.ProductID > 0 {
			set[item.ProductID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64Ptr(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
