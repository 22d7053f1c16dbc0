package store

import (
	"context"
	"errors"

	"storedash/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("referenced by existing records")
)

type Repository interface {
	ListStores(ctx context.Context) ([]domain.Store, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	ListStaff(ctx context.Context, page domain.PageRequest) ([]domain.Staff, int, error)
	CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	UpdateStaffContact(ctx context.Context, id int64, contact domain.ContactUpdateRequest) error
	DeleteStaff(ctx context.Context, id int64) error

	ListCustomers(ctx context.Context, page domain.PageRequest) ([]domain.Customer, int, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomerContact(ctx context.Context, id int64, contact domain.ContactUpdateRequest) error
	DeleteCustomer(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, filter domain.ProductFilter, page domain.PageRequest) ([]domain.Product, int, error)
	UpdateProduct(ctx context.Context, id int64, update domain.ProductUpdateRequest) error
	DeleteProduct(ctx context.Context, id int64) error

	// OrderDateBounds returns the earliest and latest order dates. ok is false
	// when there are no orders at all.
	OrderDateBounds(ctx context.Context) (bounds domain.DateRange, ok bool, err error)
	PopularProducts(ctx context.Context, dateRange domain.DateRange, limit int) ([]domain.ProductPerformanceRow, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
