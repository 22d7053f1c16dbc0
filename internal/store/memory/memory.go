package memory

import (
	"cmp"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storedash/backend/internal/domain"
	"storedash/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	stores          map[int64]domain.Store
	brands          map[int64]domain.Brand
	categories      map[int64]domain.Category
	staff           map[int64]domain.Staff
	customers       map[int64]domain.Customer
	products        map[int64]domain.Product
	orders          []domain.Order
	usersByUsername map[string]domain.UserAccount
	nextID          int64
}

// Data is the initial content of a Store.
type Data struct {
	Stores     []domain.Store
	Brands     []domain.Brand
	Categories []domain.Category
	Staff      []domain.Staff
	Customers  []domain.Customer
	Products   []domain.Product
	Orders     []domain.Order
	Users      []domain.UserAccount
}

func New(data Data) *Store {
	s := &Store{
		stores:          make(map[int64]domain.Store, len(data.Stores)),
		brands:          make(map[int64]domain.Brand, len(data.Brands)),
		categories:      make(map[int64]domain.Category, len(data.Categories)),
		staff:           make(map[int64]domain.Staff, len(data.Staff)),
		customers:       make(map[int64]domain.Customer, len(data.Customers)),
		products:        make(map[int64]domain.Product, len(data.Products)),
		orders:          make([]domain.Order, 0, len(data.Orders)),
		usersByUsername: make(map[string]domain.UserAccount, len(data.Users)),
	}
	for _, st := range data.Stores {
		s.stores[st.ID] = st
		s.bumpID(st.ID)
	}
	for _, b := range data.Brands {
		s.brands[b.ID] = b
		s.bumpID(b.ID)
	}
	for _, c := range data.Categories {
		s.categories[c.ID] = c
		s.bumpID(c.ID)
	}
	for _, st := range data.Staff {
		s.staff[st.ID] = st
		s.bumpID(st.ID)
	}
	for _, c := range data.Customers {
		s.customers[c.ID] = c
		s.bumpID(c.ID)
	}
	for _, p := range data.Products {
		s.products[p.ID] = p
		s.bumpID(p.ID)
	}
	for _, o := range data.Orders {
		o.OrderDate = o.OrderDate.UTC()
		s.orders = append(s.orders, o)
		s.bumpID(o.ID)
	}
	for _, u := range data.Users {
		s.usersByUsername[strings.ToLower(u.Username)] = u
	}
	return s
}

// seedUsers builds the dev/demo accounts. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset values fall back to
// well-known dev defaults and a warning is logged.
func seedUsers(logger *zap.Logger) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users = append(users, domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	price := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	ref := func(id int64) *int64 { return &id }

	data := Data{
		Stores: []domain.Store{
			{ID: 1, Name: "Santa Cruz Bikes"},
			{ID: 2, Name: "Baldwin Bikes"},
			{ID: 3, Name: "Rowlett Bikes"},
		},
		Brands: []domain.Brand{
			{ID: 1, Name: "Electra"},
			{ID: 2, Name: "Haro"},
			{ID: 3, Name: "Trek"},
			{ID: 4, Name: "Surly"},
		},
		Categories: []domain.Category{
			{ID: 1, Name: "Children Bicycles"},
			{ID: 2, Name: "Comfort Bicycles"},
			{ID: 3, Name: "Cruisers Bicycles"},
			{ID: 4, Name: "Mountain Bikes"},
			{ID: 5, Name: "Road Bikes"},
		},
		Staff: []domain.Staff{
			{ID: 1, FirstName: "Fabiola", LastName: "Jackson", Email: "fabiola.jackson@bikes.shop", Phone: "(831) 555-5554", Active: true, StoreID: 1},
			{ID: 2, FirstName: "Mireya", LastName: "Copeland", Email: "mireya.copeland@bikes.shop", Phone: "(831) 555-5555", Active: true, StoreID: 1, ManagerID: ref(1)},
			{ID: 3, FirstName: "Genna", LastName: "Serrano", Email: "genna.serrano@bikes.shop", Phone: "(831) 555-5556", Active: true, StoreID: 1, ManagerID: ref(2)},
			{ID: 4, FirstName: "Virgie", LastName: "Wiggins", Email: "virgie.wiggins@bikes.shop", Phone: "(831) 555-5557", Active: true, StoreID: 1, ManagerID: ref(2)},
			{ID: 5, FirstName: "Jannette", LastName: "David", Email: "jannette.david@bikes.shop", Phone: "(516) 379-4444", Active: true, StoreID: 2, ManagerID: ref(1)},
			{ID: 6, FirstName: "Marcelene", LastName: "Boyer", Email: "marcelene.boyer@bikes.shop", Phone: "(516) 379-4445", Active: true, StoreID: 2, ManagerID: ref(5)},
			{ID: 7, FirstName: "Venita", LastName: "Daniel", Email: "venita.daniel@bikes.shop", Phone: "(516) 379-4446", Active: true, StoreID: 2, ManagerID: ref(5)},
			{ID: 8, FirstName: "Kali", LastName: "Vargas", Email: "kali.vargas@bikes.shop", Phone: "(972) 530-5555", Active: true, StoreID: 3, ManagerID: ref(1)},
		},
		Customers: []domain.Customer{
			{ID: 101, FirstName: "Debra", LastName: "Burks", Email: "debra.burks@yahoo.com", City: "Orchard Park", State: "NY", ZipCode: "14127"},
			{ID: 102, FirstName: "Kasha", LastName: "Todd", Email: "kasha.todd@yahoo.com", City: "Campbell", State: "CA", ZipCode: "95008"},
			{ID: 103, FirstName: "Tameka", LastName: "Fisher", Email: "tameka.fisher@aol.com", City: "Redondo Beach", State: "CA", ZipCode: "90278"},
			{ID: 104, FirstName: "Daryl", LastName: "Spence", Email: "daryl.spence@aol.com", City: "Uniondale", State: "NY", ZipCode: "11553"},
			{ID: 105, FirstName: "Charolette", LastName: "Rice", Email: "charolette.rice@msn.com", Phone: "(916) 381-6003", City: "Sacramento", State: "CA", ZipCode: "95820"},
			{ID: 106, FirstName: "Lyndsey", LastName: "Bean", Email: "lyndsey.bean@hotmail.com", City: "Fairport", State: "NY", ZipCode: "14450"},
			{ID: 107, FirstName: "Latasha", LastName: "Hays", Email: "latasha.hays@hotmail.com", Phone: "(716) 986-3359", City: "Buffalo", State: "NY", ZipCode: "14215"},
		},
		Products: []domain.Product{
			{ID: 201, Name: "Trek 820 - 2016", BrandID: 3, CategoryID: 4, ModelYear: 2016, ListPrice: price("379.99")},
			{ID: 202, Name: "Ritchey Timberwolf Frameset - 2016", BrandID: 4, CategoryID: 4, ModelYear: 2016, ListPrice: price("749.99")},
			{ID: 203, Name: "Surly Wednesday Frameset - 2016", BrandID: 4, CategoryID: 4, ModelYear: 2016, ListPrice: price("999.99")},
			{ID: 204, Name: "Trek Fuel EX 8 29 - 2016", BrandID: 3, CategoryID: 4, ModelYear: 2016, ListPrice: price("2899.99")},
			{ID: 205, Name: "Heller Shagamaw Frame - 2016", BrandID: 2, CategoryID: 4, ModelYear: 2016, ListPrice: price("1320.99")},
			{ID: 206, Name: "Electra Townie Original 7D - 2015", BrandID: 1, CategoryID: 2, ModelYear: 2015, ListPrice: price("499.99")},
			{ID: 207, Name: "Electra Cruiser 1 (24-Inch) - 2016", BrandID: 1, CategoryID: 3, ModelYear: 2016, ListPrice: price("269.99")},
			{ID: 208, Name: "Haro Shredder 20 - 2017", BrandID: 2, CategoryID: 1, ModelYear: 2017, ListPrice: price("209.99")},
			{ID: 209, Name: "Trek Domane SL 6 - 2017", BrandID: 3, CategoryID: 5, ModelYear: 2017, ListPrice: price("3499.99")},
		},
		Orders: []domain.Order{
			{ID: 1001, CustomerID: ref(101), StoreID: 1, StaffID: 2, OrderDate: day(2016, time.January, 1), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 201, Quantity: 1, ListPrice: price("379.99")},
				{ItemID: 2, ProductID: 206, Quantity: 2, ListPrice: price("499.99")},
			}},
			{ID: 1002, CustomerID: ref(102), StoreID: 2, StaffID: 6, OrderDate: day(2016, time.January, 1), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 207, Quantity: 1, ListPrice: price("269.99")},
			}},
			{ID: 1003, CustomerID: ref(103), StoreID: 2, StaffID: 7, OrderDate: day(2016, time.January, 2), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 206, Quantity: 1, ListPrice: price("449.99")},
				{ItemID: 2, ProductID: 204, Quantity: 1, ListPrice: price("2899.99")},
			}},
			{ID: 1004, CustomerID: ref(104), StoreID: 1, StaffID: 3, OrderDate: day(2016, time.March, 14), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 208, Quantity: 3, ListPrice: price("209.99")},
				{ItemID: 2, ProductID: 201, Quantity: 2, ListPrice: price("379.99")},
			}},
			{ID: 1005, CustomerID: ref(105), StoreID: 3, StaffID: 8, OrderDate: day(2017, time.June, 9), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 209, Quantity: 1, ListPrice: price("3499.99")},
				{ItemID: 2, ProductID: 207, Quantity: 2, ListPrice: price("249.99")},
			}},
			{ID: 1006, CustomerID: ref(106), StoreID: 1, StaffID: 2, OrderDate: day(2018, time.April, 30), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 205, Quantity: 1, ListPrice: price("1320.99")},
				{ItemID: 2, ProductID: 208, Quantity: 1, ListPrice: price("229.99")},
			}},
		},
		Users: seedUsers(logger),
	}
	return New(data)
}

func (s *Store) bumpID(id int64) {
	if id > s.nextID {
		s.nextID = id
	}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int { return cmp.Compare(a.ID, b.ID) })
	return stores, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	brands := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		brands = append(brands, b)
	}
	slices.SortFunc(brands, func(a, b domain.Brand) int { return cmp.Compare(a.ID, b.ID) })
	return brands, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmp.Compare(a.ID, b.ID) })
	return categories, nil
}

func (s *Store) ListStaff(_ context.Context, page domain.PageRequest) ([]domain.Staff, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		st.StoreName = s.stores[st.StoreID].Name
		all = append(all, st)
	}
	slices.SortFunc(all, func(a, b domain.Staff) int {
		if a.FirstName == b.FirstName {
			return cmp.Compare(a.ID, b.ID)
		}
		return cmp.Compare(a.FirstName, b.FirstName)
	})
	return paginate(all, page), len(all), nil
}

func (s *Store) CreateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if staff.FirstName == "" || staff.LastName == "" || staff.Email == "" {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.stores[staff.StoreID]; !ok {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.staff {
		if strings.EqualFold(existing.Email, staff.Email) {
			return nil, store.ErrConflict
		}
	}

	staff.ID = s.allocID()
	staff.StoreName = ""
	s.staff[staff.ID] = staff
	created := staff
	created.StoreName = s.stores[staff.StoreID].Name
	return &created, nil
}

func (s *Store) UpdateStaffContact(_ context.Context, id int64, contact domain.ContactUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staff, ok := s.staff[id]
	if !ok {
		return store.ErrNotFound
	}
	staff.FirstName = contact.FirstName
	staff.LastName = contact.LastName
	staff.Email = contact.Email
	staff.Phone = contact.Phone
	s.staff[id] = staff
	return nil
}

func (s *Store) DeleteStaff(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.staff[id]; !ok {
		return store.ErrNotFound
	}
	for _, o := range s.orders {
		if o.StaffID == id {
			return store.ErrConflict
		}
	}
	for _, st := range s.staff {
		if st.ManagerID != nil && *st.ManagerID == id {
			return store.ErrConflict
		}
	}
	delete(s.staff, id)
	return nil
}

func (s *Store) ListCustomers(_ context.Context, page domain.PageRequest) ([]domain.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		all = append(all, c)
	}
	slices.SortFunc(all, func(a, b domain.Customer) int {
		if a.FirstName == b.FirstName {
			return cmp.Compare(a.ID, b.ID)
		}
		return cmp.Compare(a.FirstName, b.FirstName)
	})
	return paginate(all, page), len(all), nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.FirstName == "" || customer.LastName == "" || customer.Email == "" {
		return nil, store.ErrInvalidInput
	}
	customer.ID = s.allocID()
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomerContact(_ context.Context, id int64, contact domain.ContactUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	customer.FirstName = contact.FirstName
	customer.LastName = contact.LastName
	customer.Email = contact.Email
	customer.Phone = contact.Phone
	s.customers[id] = customer
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	for _, o := range s.orders {
		if o.CustomerID != nil && *o.CustomerID == id {
			return store.ErrConflict
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter, page domain.PageRequest) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.BrandID != nil && p.BrandID != *filter.BrandID {
			continue
		}
		if filter.CategoryID != nil && p.CategoryID != *filter.CategoryID {
			continue
		}
		p.BrandName = s.brands[p.BrandID].Name
		p.CategoryName = s.categories[p.CategoryID].Name
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmp.Compare(a.ID, b.ID)
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return paginate(all, page), len(all), nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, update domain.ProductUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	if update.Name == "" || update.ListPrice.IsNegative() {
		return store.ErrInvalidInput
	}
	product.Name = update.Name
	product.ModelYear = update.ModelYear
	product.ListPrice = update.ListPrice
	product.ImageURL = update.ImageURL
	s.products[id] = product
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) OrderDateBounds(_ context.Context) (domain.DateRange, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.orders) == 0 {
		return domain.DateRange{}, false, nil
	}
	bounds := domain.DateRange{Start: s.orders[0].OrderDate, End: s.orders[0].OrderDate}
	for _, o := range s.orders[1:] {
		if o.OrderDate.Before(bounds.Start) {
			bounds.Start = o.OrderDate
		}
		if o.OrderDate.After(bounds.End) {
			bounds.End = o.OrderDate
		}
	}
	return bounds, true, nil
}

func (s *Store) PopularProducts(_ context.Context, dateRange domain.DateRange, limit int) ([]domain.ProductPerformanceRow, error) {
	if limit <= 0 || dateRange.Empty() {
		return []domain.ProductPerformanceRow{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[int64]*domain.ProductPerformanceRow)
	for _, o := range s.orders {
		if !dateRange.Contains(o.OrderDate) {
			continue
		}
		for _, item := range o.Items {
			product, ok := s.products[item.ProductID]
			if !ok {
				continue
			}
			brand, ok := s.brands[product.BrandID]
			if !ok {
				continue
			}
			category, ok := s.categories[product.CategoryID]
			if !ok {
				continue
			}

			row := groups[product.ID]
			if row == nil {
				row = &domain.ProductPerformanceRow{
					ProductID: product.ID,
					Product:   product.Name,
					Brand:     brand.Name,
					Category:  category.Name,
					Revenue:   decimal.Zero,
				}
				groups[product.ID] = row
			}
			row.Quantity += item.Quantity
			row.Revenue = row.Revenue.Add(item.ListPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	rows := make([]domain.ProductPerformanceRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, domain.ComparePerformance)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func paginate[T any](all []T, page domain.PageRequest) []T {
	if page.PageSize <= 0 {
		return all
	}
	offset := page.Offset()
	if offset >= len(all) {
		return []T{}
	}
	end := offset + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
