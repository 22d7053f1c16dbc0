package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storedash/backend/internal/archive"
	"storedash/backend/internal/domain"
	"storedash/backend/internal/report"
	"storedash/backend/internal/service"
	"storedash/backend/internal/store/memory"
)

// newTestAPI wires the real service, archive and auth stack over the seeded
// in-memory store so handler tests exercise the full request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_STAFF_PASSWORD", "staff123")

	repo := memory.NewSeeded(zap.NewNop())
	backend, err := archive.NewFSBackend(t.TempDir())
	require.NoError(t, err)

	aggregator := report.NewAggregator(repo, nil, 0, zap.NewNop())
	svc := service.New(repo, aggregator, archive.New(backend), service.Options{}, zap.NewNop())
	auth := NewAuthManager(context.Background(), "test-secret-key-0123456789abcdef", time.Hour, repo, zap.NewNop())

	return New(svc, auth, "*", zap.NewNop())
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newClient(t *testing.T, api *API) *testClient {
	return &testClient{t: t, handler: api.Handler()}
}

func (c *testClient) do(method string, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

// login authenticates and also fetches a CSRF token for later mutations.
func (c *testClient) login(username, password string) *testClient {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: username, Password: password})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(c.t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(c.t, resp.AccessToken)
	c.token = resp.AccessToken
	c.csrf = fetchCSRFToken(c.t, c.handler)
	return c
}

func fetchCSRFToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.NotEmpty(t, strings.TrimSpace(payload["csrf_token"]))
	return payload["csrf_token"]
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	rec := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "Admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[domain.LoginResponse](t, rec)
	assert.Equal(t, domain.RoleAdmin, resp.Role)
	assert.NotEmpty(t, resp.AccessToken)

	rec = c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/auth/login", `{"username":"admin","password":"admin123","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardRequiresAuth(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c.token = "not-a-token"
	rec = c.do(http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardPaging(t *testing.T) {
	c := newClient(t, newTestAPI(t)).login("staff", "staff123")

	rec := c.do(http.MethodGet, "/api/v1/dashboard?staffPage=2&brandId=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[domain.DashboardResponse](t, rec)
	assert.Equal(t, 2, resp.Staff.Page)
	assert.Len(t, resp.Staff.Items, 2)
	assert.Equal(t, 6, resp.Customers.PageSize)
	require.Len(t, resp.Products.Items, 2)
	for _, p := range resp.Products.Items {
		assert.Equal(t, "Electra", p.BrandName)
	}

	rec = c.do(http.MethodGet, "/api/v1/dashboard?brandId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateStaffNeedsCSRFToken(t *testing.T) {
	c := newClient(t, newTestAPI(t)).login("staff", "staff123")
	body := domain.StaffCreateRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@bikes.shop", StoreID: 1}

	csrf := c.csrf
	c.csrf = ""
	rec := c.do(http.MethodPost, "/api/v1/staff", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c.csrf = csrf
	rec = c.do(http.MethodPost, "/api/v1/staff", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]domain.Staff](t, rec)
	assert.Equal(t, "Ada", created["staff"].FirstName)

	rec = c.do(http.MethodPost, "/api/v1/staff", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/staff", domain.StaffCreateRequest{FirstName: "Ada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditsAndDeletesAreAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api).login("staff", "staff123")
	admin := newClient(t, api).login("admin", "admin123")

	rec := staff.do(http.MethodDelete, "/api/v1/staff/4", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = admin.do(http.MethodDelete, "/api/v1/staff/2", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "This staff member cannot be deleted because they are linked to existing orders.", body["error"])

	rec = admin.do(http.MethodDelete, "/api/v1/staff/4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = admin.do(http.MethodDelete, "/api/v1/staff/4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = admin.do(http.MethodPatch, "/api/v1/customers/101", domain.ContactUpdateRequest{FirstName: "Debbie", LastName: "Burks", Email: "debbie@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = admin.do(http.MethodPatch, "/api/v1/customers/abc", domain.ContactUpdateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = admin.do(http.MethodDelete, "/api/v1/products/201", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = admin.do(http.MethodPatch, "/api/v1/products/201", `{"name":"Trek 820","model_year":2016,"list_price":"389.99"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestReportView(t *testing.T) {
	c := newClient(t, newTestAPI(t)).login("staff", "staff123")

	rec := c.do(http.MethodGet, "/api/v1/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody[domain.ReportView](t, rec)
	assert.Equal(t, "2016-01-01", view.From)
	assert.Equal(t, "2018-04-30", view.To)
	assert.Equal(t, 10, view.Top)
	require.NotEmpty(t, view.Rows)
	assert.Equal(t, "Haro Shredder 20 - 2017", view.Rows[0].Product)
	assert.Equal(t, len(view.Rows), len(view.Chart.Labels))
	assert.NotNil(t, view.Archive)

	rec = c.do(http.MethodGet, "/api/v1/report?from=2016-01-01&to=2016-01-01&top=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody[domain.ReportView](t, rec)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "Electra Townie Original 7D - 2015", view.Rows[0].Product)

	rec = c.do(http.MethodGet, "/api/v1/report?from=01/01/2016", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = c.do(http.MethodGet, "/api/v1/report?top=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportExportCSV(t *testing.T) {
	c := newClient(t, newTestAPI(t)).login("staff", "staff123")

	rec := c.do(http.MethodGet, "/api/v1/report/export.csv?top=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "popular-products.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "product,brand,category,quantity,revenue\n"))
}

func TestReportSaveDownloadDelete(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api).login("staff", "staff123")
	admin := newClient(t, api).login("admin", "admin123")

	rec := staff.do(http.MethodPost, "/api/v1/report/save", domain.ReportSaveRequest{FileName: "Q1 Report", FileType: "csv", CSVData: "a,b\n1,2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeBody[domain.ReportSaveResponse](t, rec)
	require.True(t, saved.Saved)
	assert.Equal(t, "Saved 'Q1 Report.csv'.", saved.Message)

	rec = staff.do(http.MethodGet, "/api/v1/report/download?name="+url.QueryEscape(saved.StorageKey)+"&ext=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Q1 Report.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n1,2", rec.Body.String())

	rec = staff.do(http.MethodGet, "/api/v1/report", nil)
	view := decodeBody[domain.ReportView](t, rec)
	require.Len(t, view.Archive, 1)
	assert.Equal(t, saved.StorageKey, view.Archive[0].StorageKey)

	rec = staff.do(http.MethodPost, "/api/v1/report/delete", domain.ReportDeleteRequest{BaseName: saved.StorageKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = admin.do(http.MethodPost, "/api/v1/report/delete", domain.ReportDeleteRequest{BaseName: saved.StorageKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Report deleted.", decodeBody[domain.ReportDeleteResponse](t, rec).Message)

	rec = staff.do(http.MethodGet, "/api/v1/report/download?name="+url.QueryEscape(saved.StorageKey)+"&ext=csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportSaveValidationIsNotAnHTTPError(t *testing.T) {
	c := newClient(t, newTestAPI(t)).login("staff", "staff123")

	rec := c.do(http.MethodPost, "/api/v1/report/save", domain.ReportSaveRequest{FileName: "", FileType: "csv", CSVData: "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[domain.ReportSaveResponse](t, rec)
	assert.False(t, resp.Saved)
	assert.Equal(t, "Please enter a filename.", resp.Message)
	assert.Empty(t, resp.StorageKey)
}

func TestReportDownloadMissingParamsIsNotFound(t *testing.T) {
	c := newClient(t, newTestAPI(t)).login("staff", "staff123")

	for _, query := range []string{
		"name=x",
		"ext=png",
		"name=&ext=",
		"",
		"name=missing_20240101_000000&ext=png",
	} {
		rec := c.do(http.MethodGet, "/api/v1/report/download?"+query, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, query)
	}
}

func TestReportReconcileIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api).login("staff", "staff123")
	admin := newClient(t, api).login("admin", "admin123")

	rec := staff.do(http.MethodPost, "/api/v1/report/reconcile", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = admin.do(http.MethodPost, "/api/v1/report/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[domain.ReconcileSummary](t, rec)
	assert.False(t, summary.Skipped)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = c.do(http.MethodGet, "/api/v1/auth/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
