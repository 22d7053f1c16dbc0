package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"storedash/backend/internal/domain"
	"storedash/backend/internal/store"
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

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, store_name
		FROM stores
		ORDER BY store_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 8)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT brand_id, brand_name
		FROM brands
		ORDER BY brand_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 16)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, category_name
		FROM categories
		ORDER BY category_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) ListStaff(ctx context.Context, page domain.PageRequest) ([]domain.Staff, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staffs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.staff_id, s.first_name, s.last_name, s.email, COALESCE(s.phone, ''),
		       s.active, s.store_id, st.store_name, s.manager_id
		FROM staffs s
		JOIN stores st ON st.store_id = s.store_id
		ORDER BY s.first_name ASC, s.staff_id ASC
		LIMIT $1 OFFSET $2
	`, pageLimit(page), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	staff := make([]domain.Staff, 0, page.PageSize)
	for rows.Next() {
		var (
			member    domain.Staff
			managerID sql.NullInt64
		)
		if err := rows.Scan(
			&member.ID, &member.FirstName, &member.LastName, &member.Email, &member.Phone,
			&member.Active, &member.StoreID, &member.StoreName, &managerID,
		); err != nil {
			return nil, 0, err
		}
		if managerID.Valid {
			id := managerID.Int64
			member.ManagerID = &id
		}
		staff = append(staff, member)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return staff, total, nil
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	if staff.FirstName == "" || staff.LastName == "" || staff.Email == "" || staff.StoreID < 1 {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO staffs (first_name, last_name, email, phone, active, store_id, manager_id)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7)
		RETURNING staff_id
	`, staff.FirstName, staff.LastName, staff.Email, staff.Phone, staff.Active, staff.StoreID, nullableID(staff.ManagerID)).Scan(&staff.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := staff
	return &created, nil
}

func (s *Store) UpdateStaffContact(ctx context.Context, id int64, contact domain.ContactUpdateRequest) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE staffs
		SET first_name = $2, last_name = $3, email = $4, phone = NULLIF($5,'')
		WHERE staff_id = $1
	`, id, contact.FirstName, contact.LastName, contact.Email, contact.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return expectAffected(res)
}

func (s *Store) DeleteStaff(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM staffs WHERE staff_id = $1`, id)
}

func (s *Store) ListCustomers(ctx context.Context, page domain.PageRequest) ([]domain.Customer, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, first_name, last_name, email, COALESCE(phone, ''),
		       COALESCE(street, ''), COALESCE(city, ''), COALESCE(state, ''), COALESCE(zip_code, '')
		FROM customers
		ORDER BY first_name ASC, customer_id ASC
		LIMIT $1 OFFSET $2
	`, pageLimit(page), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, page.PageSize)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Street, &c.City, &c.State, &c.ZipCode); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.FirstName == "" || customer.LastName == "" || customer.Email == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (first_name, last_name, email, phone, street, city, state, zip_code)
		VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),NULLIF($8,''))
		RETURNING customer_id
	`, customer.FirstName, customer.LastName, customer.Email, customer.Phone,
		customer.Street, customer.City, customer.State, customer.ZipCode).Scan(&customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomerContact(ctx context.Context, id int64, contact domain.ContactUpdateRequest) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET first_name = $2, last_name = $3, email = $4, phone = NULLIF($5,'')
		WHERE customer_id = $1
	`, id, contact.FirstName, contact.LastName, contact.Email, contact.Phone)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM customers WHERE customer_id = $1`, id)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter, page domain.PageRequest) ([]domain.Product, int, error) {
	where, args := productFilterClause(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, pageLimit(page), page.Offset())
	limitArg := len(args) - 1
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_id, p.product_name, p.brand_id, b.brand_name, p.category_id, c.category_name,
		       p.model_year, p.list_price, COALESCE(p.image_url, '')
		FROM products p
		JOIN brands b ON b.brand_id = p.brand_id
		JOIN categories c ON c.category_id = p.category_id`+where+`
		ORDER BY p.product_name ASC, p.product_id ASC
		LIMIT $`+strconv.Itoa(limitArg)+` OFFSET $`+strconv.Itoa(limitArg+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, page.PageSize)
	for rows.Next() {
		var (
			p     domain.Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.BrandID, &p.BrandName, &p.CategoryID, &p.CategoryName, &p.ModelYear, &price, &p.ImageURL); err != nil {
			return nil, 0, err
		}
		if p.ListPrice, err = decimal.NewFromString(price); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, update domain.ProductUpdateRequest) error {
	if update.Name == "" || update.ListPrice.IsNegative() {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET product_name = $2, model_year = $3, list_price = $4, image_url = NULLIF($5,'')
		WHERE product_id = $1
	`, id, update.Name, update.ModelYear, update.ListPrice.String(), update.ImageURL)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM products WHERE product_id = $1`, id)
}

func (s *Store) OrderDateBounds(ctx context.Context) (domain.DateRange, bool, error) {
	var start, end sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(order_date), MAX(order_date) FROM orders`).Scan(&start, &end); err != nil {
		return domain.DateRange{}, false, err
	}
	if !start.Valid || !end.Valid {
		return domain.DateRange{}, false, nil
	}
	return domain.DateRange{Start: dateUTC(start.Time), End: dateUTC(end.Time)}, true, nil
}

func (s *Store) PopularProducts(ctx context.Context, dateRange domain.DateRange, limit int) ([]domain.ProductPerformanceRow, error) {
	if limit <= 0 || dateRange.Empty() {
		return []domain.ProductPerformanceRow{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_id, p.product_name, b.brand_name, c.category_name,
		       SUM(oi.quantity) AS total_qty,
		       SUM(oi.list_price * oi.quantity) AS total_revenue
		FROM order_items oi
		JOIN orders o ON o.order_id = oi.order_id
		JOIN products p ON p.product_id = oi.product_id
		JOIN brands b ON b.brand_id = p.brand_id
		JOIN categories c ON c.category_id = p.category_id
		WHERE o.order_date >= $1 AND o.order_date <= $2
		GROUP BY p.product_id, p.product_name, b.brand_name, c.category_name
		ORDER BY total_qty DESC, p.product_name ASC, p.product_id ASC
		LIMIT $3
	`, dateUTC(dateRange.Start), dateUTC(dateRange.End), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductPerformanceRow, 0, limit)
	for rows.Next() {
		var (
			row     domain.ProductPerformanceRow
			revenue string
		)
		if err := rows.Scan(&row.ProductID, &row.Product, &row.Brand, &row.Category, &row.Quantity, &revenue); err != nil {
			return nil, err
		}
		if row.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) deleteByID(ctx context.Context, query string, id int64) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func productFilterClause(filter domain.ProductFilter) (string, []any) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.BrandID != nil {
		args = append(args, *filter.BrandID)
		conditions = append(conditions, "p.brand_id = $"+strconv.Itoa(len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, "p.category_id = $"+strconv.Itoa(len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "\n\t\tWHERE " + strings.Join(conditions, " AND "), args
}

// pageLimit maps an unbounded page to a LIMIT that returns every row.
func pageLimit(page domain.PageRequest) any {
	if page.PageSize <= 0 {
		return nil
	}
	return page.PageSize
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
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

func dateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
