package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storedash/backend/internal/domain"
	"storedash/backend/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestListStaffPaginates(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	first, total, err := s.ListStaff(ctx, domain.PageRequest{Page: 1, PageSize: 6})
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	require.Len(t, first, 6)
	assert.Equal(t, "Fabiola", first[0].FirstName)
	assert.Equal(t, "Santa Cruz Bikes", first[0].StoreName)

	beyond, total, err := s.ListStaff(ctx, domain.PageRequest{Page: 5, PageSize: 6})
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	assert.Empty(t, beyond)
}

func TestListProductsFilters(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	mountain := int64(4)
	trek := int64(3)

	products, total, err := s.ListProducts(context.Background(), domain.ProductFilter{BrandID: &trek, CategoryID: &mountain}, domain.PageRequest{Page: 1, PageSize: 6})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, "Trek 820 - 2016", products[0].Name)
	assert.Equal(t, "Trek", products[0].BrandName)
	assert.Equal(t, "Mountain Bikes", products[0].CategoryName)
}

func TestDeletesRespectOrderReferences(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, s.DeleteStaff(ctx, 2), store.ErrConflict)
	assert.ErrorIs(t, s.DeleteStaff(ctx, 1), store.ErrConflict, "managers are referenced by their reports")
	require.NoError(t, s.DeleteStaff(ctx, 4))
	assert.ErrorIs(t, s.DeleteStaff(ctx, 4), store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteCustomer(ctx, 106), store.ErrConflict)
	require.NoError(t, s.DeleteCustomer(ctx, 107))

	assert.ErrorIs(t, s.DeleteProduct(ctx, 208), store.ErrConflict)
	require.NoError(t, s.DeleteProduct(ctx, 203))
	assert.ErrorIs(t, s.DeleteProduct(ctx, 203), store.ErrNotFound)
}

func TestCreateStaffRejectsDuplicateEmail(t *testing.T) {
	s := NewSeeded(zap.NewNop())

	_, err := s.CreateStaff(context.Background(), domain.Staff{FirstName: "A", LastName: "B", Email: "Kali.Vargas@bikes.shop", StoreID: 3})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateStaff(context.Background(), domain.Staff{FirstName: "A", LastName: "B", Email: "a@b.c", StoreID: 42})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestOrderDateBounds(t *testing.T) {
	bounds, ok, err := NewSeeded(zap.NewNop()).OrderDateBounds(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2016, time.January, 1), bounds.Start)
	assert.Equal(t, day(2018, time.April, 30), bounds.End)

	_, ok, err = New(Data{}).OrderDateBounds(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPopularProductsUsesSoldPriceAndSkipsDanglingItems(t *testing.T) {
	s := New(Data{
		Brands:     []domain.Brand{{ID: 1, Name: "Brand"}},
		Categories: []domain.Category{{ID: 1, Name: "Category"}},
		Products: []domain.Product{
			{ID: 1, Name: "Frame", BrandID: 1, CategoryID: 1, ListPrice: decimal.NewFromInt(999)},
			{ID: 2, Name: "Orphan brand", BrandID: 9, CategoryID: 1, ListPrice: decimal.NewFromInt(1)},
		},
		Orders: []domain.Order{
			{ID: 1, OrderDate: day(2020, time.May, 1), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 1, Quantity: 2, ListPrice: decimal.RequireFromString("10.50")},
				{ItemID: 2, ProductID: 2, Quantity: 50, ListPrice: decimal.NewFromInt(1)},
				{ItemID: 3, ProductID: 77, Quantity: 50, ListPrice: decimal.NewFromInt(1)},
			}},
			{ID: 2, OrderDate: day(2020, time.May, 2), Items: []domain.OrderItem{
				{ItemID: 1, ProductID: 1, Quantity: 1, ListPrice: decimal.RequireFromString("12.00")},
			}},
		},
	})

	rows, err := s.PopularProducts(context.Background(), domain.DateRange{Start: day(2020, time.May, 1), End: day(2020, time.May, 2)}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Quantity)
	assert.Equal(t, "33", rows[0].Revenue.String())

	rows, err = s.PopularProducts(context.Background(), domain.DateRange{Start: day(2020, time.May, 2), End: day(2020, time.May, 1)}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSeededUsersAreHashed(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-secret")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-secret")

	users, err := NewSeeded(zap.NewNop()).ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)
	assert.NotEqual(t, "admin-secret", users[0].Password)
	assert.Equal(t, "staff", users[1].Username)
}
