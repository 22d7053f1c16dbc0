package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type Store struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Staff struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Active    bool   `json:"active"`
	StoreID   int64  `json:"store_id"`
	StoreName string `json:"store_name,omitempty"`
	ManagerID *int64 `json:"manager_id,omitempty"`
}

type Customer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zip_code,omitempty"`
}

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	BrandID      int64           `json:"brand_id"`
	BrandName    string          `json:"brand_name"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	ModelYear    int             `json:"model_year"`
	ListPrice    decimal.Decimal `json:"list_price"`
	ImageURL     string          `json:"image_url,omitempty"`
}

type Order struct {
	ID         int64       `json:"id"`
	CustomerID *int64      `json:"customer_id,omitempty"`
	StoreID    int64       `json:"store_id"`
	StaffID    int64       `json:"staff_id"`
	OrderDate  time.Time   `json:"order_date"`
	Items      []OrderItem `json:"items"`
}

// OrderItem keeps the price the line was sold at, which may differ from the
// product's current list price.
type OrderItem struct {
	ItemID    int             `json:"item_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	ListPrice decimal.Decimal `json:"list_price"`
	Discount  decimal.Decimal `json:"discount"`
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

type PageRequest struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the requested page. Pages start at 1.
func (p PageRequest) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.PageSize
}

type ProductFilter struct {
	BrandID    *int64
	CategoryID *int64
}

type DashboardRequest struct {
	StaffPage    int
	CustomerPage int
	ProductPage  int
	BrandID      *int64
	CategoryID   *int64
}

type DashboardResponse struct {
	Staff      Page[Staff]    `json:"staff"`
	Customers  Page[Customer] `json:"customers"`
	Products   Page[Product]  `json:"products"`
	Brands     []Brand        `json:"brands"`
	Categories []Category     `json:"categories"`
	Stores     []Store        `json:"stores"`
	BrandID    *int64         `json:"brand_id,omitempty"`
	CategoryID *int64         `json:"category_id,omitempty"`
}

type StaffCreateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Active    *bool  `json:"active,omitempty"`
	StoreID   int64  `json:"store_id"`
	ManagerID *int64 `json:"manager_id,omitempty"`
}

type CustomerCreateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
}

type ContactUpdateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type ProductUpdateRequest struct {
	Name      string          `json:"name"`
	ModelYear int             `json:"model_year"`
	ListPrice decimal.Decimal `json:"list_price"`
	ImageURL  string          `json:"image_url"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Live is set when a bound was filled from the current order dates.
	Live bool `json:"-"`
}

// Contains reports whether t falls inside the range, both ends inclusive.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) Empty() bool {
	return r.Start.After(r.End)
}

type ProductPerformanceRow struct {
	ProductID int64           `json:"product_id"`
	Product   string          `json:"product"`
	Brand     string          `json:"brand"`
	Category  string          `json:"category"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// ReportRequest bounds are optional; nil Top means the configured default.
type ReportRequest struct {
	From *time.Time
	To   *time.Time
	Top  *int
}

type ReportChart struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

type ReportView struct {
	From    string                  `json:"from,omitempty"`
	To      string                  `json:"to,omitempty"`
	Top     int                     `json:"top"`
	Rows    []ProductPerformanceRow `json:"rows"`
	Chart   ReportChart             `json:"chart"`
	Archive []ArtifactRecord        `json:"archive"`
}

// ArtifactKind selects the payload format of an archived report.
type ArtifactKind string

const (
	KindImage   ArtifactKind = "png"
	KindTabular ArtifactKind = "csv"
)

func (k ArtifactKind) Valid() bool {
	return k == KindImage || k == KindTabular
}

func (k ArtifactKind) Extension() string {
	return "." + string(k)
}

func (k ArtifactKind) MIMEType() string {
	switch k {
	case KindImage:
		return "image/png"
	case KindTabular:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// ArtifactRecord is the metadata sidecar stored next to every archived payload.
type ArtifactRecord struct {
	StorageKey      string       `json:"baseName"`
	DisplayName     string       `json:"displayName"`
	Kind            ArtifactKind `json:"fileType"`
	CreatedAt       time.Time    `json:"savedAt"`
	DescriptionHTML string       `json:"descriptionHtml"`
}

type ReportSaveRequest struct {
	FileName        string `json:"fileName"`
	FileType        string `json:"fileType"`
	ImageData       string `json:"imageData,omitempty"`
	CSVData         string `json:"csvData,omitempty"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
}

type ReportSaveResponse struct {
	Saved      bool   `json:"saved"`
	Message    string `json:"message"`
	StorageKey string `json:"storageKey,omitempty"`
}

type ReportDeleteRequest struct {
	BaseName string `json:"baseName"`
}

type ReportDeleteResponse struct {
	Message string `json:"message"`
}

type ReportDownload struct {
	Data     []byte
	MIMEType string
	FileName string
}

type ReconcileSummary struct {
	OrphanedPayloads int       `json:"orphaned_payloads"`
	OrphanedMetadata int       `json:"orphaned_metadata"`
	Removed          int       `json:"removed"`
	Skipped          bool      `json:"skipped"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ComparePerformance orders rows by quantity descending, then product name and
// id ascending so equal quantities rank the same way on every backend.
func ComparePerformance(a, b ProductPerformanceRow) int {
	if a.Quantity != b.Quantity {
		if a.Quantity > b.Quantity {
			return -1
		}
		return 1
	}
	if a.Product != b.Product {
		if a.Product < b.Product {
			return -1
		}
		return 1
	}
	switch {
	case a.ProductID < b.ProductID:
		return -1
	case a.ProductID > b.ProductID:
		return 1
	default:
		return 0
	}
}
