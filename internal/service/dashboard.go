package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"storedash/backend/internal/domain"
	"storedash/backend/internal/store"
)

// Dashboard returns one page each of staff, customers and products plus the
// lookup lists used for filtering and creation forms.
func (s *Service) Dashboard(ctx context.Context, req domain.DashboardRequest) (domain.DashboardResponse, error) {
	staffPage := domain.PageRequest{Page: normalizePage(req.StaffPage), PageSize: s.opts.PageSize}
	staff, staffTotal, err := s.repo.ListStaff(ctx, staffPage)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	customerPage := domain.PageRequest{Page: normalizePage(req.CustomerPage), PageSize: s.opts.PageSize}
	customers, customerTotal, err := s.repo.ListCustomers(ctx, customerPage)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	productPage := domain.PageRequest{Page: normalizePage(req.ProductPage), PageSize: s.opts.PageSize}
	filter := domain.ProductFilter{BrandID: req.BrandID, CategoryID: req.CategoryID}
	products, productTotal, err := s.repo.ListProducts(ctx, filter, productPage)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	brands, err := s.repo.ListBrands(ctx)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	return domain.DashboardResponse{
		Staff:      newPage(staff, staffPage, staffTotal),
		Customers:  newPage(customers, customerPage, customerTotal),
		Products:   newPage(products, productPage, productTotal),
		Brands:     brands,
		Categories: categories,
		Stores:     stores,
		BrandID:    req.BrandID,
		CategoryID: req.CategoryID,
	}, nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.Staff, error) {
	if err := requireRole(ctx, domain.RoleAdmin, domain.RoleStaff); err != nil {
		return domain.Staff{}, err
	}

	staff := domain.Staff{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Active:    true,
		StoreID:   req.StoreID,
		ManagerID: req.ManagerID,
	}
	if req.Active != nil {
		staff.Active = *req.Active
	}
	if staff.FirstName == "" || staff.LastName == "" || !validEmail(staff.Email) || staff.StoreID < 1 {
		return domain.Staff{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateStaff(ctx, staff)
	if errors.Is(err, store.ErrConflict) {
		return domain.Staff{}, &ConflictError{Message: "A staff member with this email already exists."}
	}
	if err != nil {
		return domain.Staff{}, err
	}
	s.logger.Info("staff created", zap.Int64("staff_id", created.ID), zap.String("actor", actorName(ctx)))
	return *created, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if err := requireRole(ctx, domain.RoleAdmin, domain.RoleStaff); err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Street:    strings.TrimSpace(req.Street),
		City:      strings.TrimSpace(req.City),
		State:     strings.TrimSpace(req.State),
		ZipCode:   strings.TrimSpace(req.ZipCode),
	}
	if customer.FirstName == "" || customer.LastName == "" || !validEmail(customer.Email) {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logger.Info("customer created", zap.Int64("customer_id", created.ID), zap.String("actor", actorName(ctx)))
	return *created, nil
}

// UpdateStaff edits contact fields. Editing an id that no longer exists is a
// no-op.
func (s *Service) UpdateStaff(ctx context.Context, id int64, req domain.ContactUpdateRequest) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	contact, err := normalizeContact(req)
	if err != nil {
		return err
	}
	return ignoreNotFound(s.repo.UpdateStaffContact(ctx, id, contact))
}

func (s *Service) DeleteStaff(ctx context.Context, id int64) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	err := ignoreNotFound(s.repo.DeleteStaff(ctx, id))
	if errors.Is(err, store.ErrConflict) {
		return &ConflictError{Message: "This staff member cannot be deleted because they are linked to existing orders."}
	}
	if err == nil {
		s.logger.Info("staff deleted", zap.Int64("staff_id", id), zap.String("actor", actorName(ctx)))
	}
	return err
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.ContactUpdateRequest) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	contact, err := normalizeContact(req)
	if err != nil {
		return err
	}
	return ignoreNotFound(s.repo.UpdateCustomerContact(ctx, id, contact))
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	err := ignoreNotFound(s.repo.DeleteCustomer(ctx, id))
	if errors.Is(err, store.ErrConflict) {
		return &ConflictError{Message: "This customer cannot be deleted because they are linked to existing orders."}
	}
	if err == nil {
		s.logger.Info("customer deleted", zap.Int64("customer_id", id), zap.String("actor", actorName(ctx)))
	}
	return err
}

// UpdateProduct edits catalog fields and drops cached reports, since they
// carry product names.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.Name == "" || req.ModelYear < 1900 || req.ListPrice.IsNegative() {
		return store.ErrInvalidInput
	}

	if err := ignoreNotFound(s.repo.UpdateProduct(ctx, id, req)); err != nil {
		return err
	}
	s.reports.Invalidate(ctx)
	return nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	err := ignoreNotFound(s.repo.DeleteProduct(ctx, id))
	if errors.Is(err, store.ErrConflict) {
		return &ConflictError{Message: "This product cannot be deleted because it appears on existing orders."}
	}
	if err != nil {
		return err
	}
	s.reports.Invalidate(ctx)
	s.logger.Info("product deleted", zap.Int64("product_id", id), zap.String("actor", actorName(ctx)))
	return nil
}

func normalizeContact(req domain.ContactUpdateRequest) (domain.ContactUpdateRequest, error) {
	contact := domain.ContactUpdateRequest{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
	}
	if contact.FirstName == "" || contact.LastName == "" || !validEmail(contact.Email) {
		return domain.ContactUpdateRequest{}, store.ErrInvalidInput
	}
	return contact, nil
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func newPage[T any](items []T, req domain.PageRequest, total int) domain.Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = (total + req.PageSize - 1) / req.PageSize
	}
	return domain.Page[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}
