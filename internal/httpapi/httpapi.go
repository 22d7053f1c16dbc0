package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storedash/backend/internal/archive"
	"storedash/backend/internal/domain"
	"storedash/backend/internal/report"
	"storedash/backend/internal/service"
	"storedash/backend/internal/store"
)

var errCSRF = errors.New("missing or invalid CSRF token")

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	now           func() time.Time
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		now:           time.Now,
		logger:        logger.Named("httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(a.securityHeaders)
	r.Use(bodyLimit)
	r.Use(a.checkCSRF)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Get("/auth/csrf-token", a.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin, domain.RoleStaff))

			r.Get("/dashboard", a.handleDashboard)
			r.Post("/staff", a.handleCreateStaff)
			r.Post("/customers", a.handleCreateCustomer)

			r.Get("/report", a.handleReport)
			r.Get("/report/export.csv", a.handleReportExport)
			r.Post("/report/save", a.handleReportSave)
			r.Get("/report/download", a.handleReportDownload)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin))

			r.Patch("/staff/{id}", a.handleUpdateStaff)
			r.Delete("/staff/{id}", a.handleDeleteStaff)
			r.Patch("/customers/{id}", a.handleUpdateCustomer)
			r.Delete("/customers/{id}", a.handleDeleteCustomer)
			r.Patch("/products/{id}", a.handleUpdateProduct)
			r.Delete("/products/{id}", a.handleDeleteProduct)

			r.Post("/report/delete", a.handleReportDelete)
			r.Post("/report/reconcile", a.handleReportReconcile)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				a.writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				a.writeError(w, r, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				a.writeError(w, r, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token to send as X-CSRF-Token on every
// mutating request.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := domain.DashboardRequest{
		StaffPage:    parsePage(query.Get("staffPage")),
		CustomerPage: parsePage(query.Get("customerPage")),
		ProductPage:  parsePage(query.Get("productPage")),
	}
	var err error
	if req.BrandID, err = parseOptionalID(query.Get("brandId")); err != nil {
		a.writeError(w, r, http.StatusBadRequest, errors.New("invalid brandId"))
		return
	}
	if req.CategoryID, err = parseOptionalID(query.Get("categoryId")); err != nil {
		a.writeError(w, r, http.StatusBadRequest, errors.New("invalid categoryId"))
		return
	}

	resp, err := a.service.Dashboard(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	staff, err := a.service.CreateStaff(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"staff": staff})
}

func (a *API) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	a.handleContactUpdate(w, r, a.service.UpdateStaff)
}

func (a *API) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	a.handleDelete(w, r, a.service.DeleteStaff)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	a.handleContactUpdate(w, r, a.service.UpdateCustomer)
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	a.handleDelete(w, r, a.service.DeleteCustomer)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := a.service.UpdateProduct(r.Context(), id, req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	a.handleDelete(w, r, a.service.DeleteProduct)
}

func (a *API) handleContactUpdate(w http.ResponseWriter, r *http.Request, update func(context.Context, int64, domain.ContactUpdateRequest) error) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req domain.ContactUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := update(r.Context(), id, req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request, remove func(context.Context, int64) error) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := remove(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.ViewReport(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleReportExport(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	data, err := a.service.ExportReportCSV(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment("popular-products.csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleReportSave(w http.ResponseWriter, r *http.Request) {
	var req domain.ReportSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, r, http.StatusRequestEntityTooLarge, errors.New("report payload is too large"))
			return
		}
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.SaveReport(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !resp.Saved {
		a.logger.Debug("report save rejected", zap.String("reason", resp.Message))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReportDownload(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("name"))
	ext := strings.TrimSpace(query.Get("ext"))
	download, err := a.service.DownloadReport(r.Context(), name, ext)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", download.MIMEType)
	w.Header().Set("Content-Disposition", attachment(download.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(download.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Data)
}

func (a *API) handleReportDelete(w http.ResponseWriter, r *http.Request) {
	var req domain.ReportDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.DeleteReport(r.Context(), req.BaseName)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReportReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.ReconcileArchive(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		a.writeError(w, r, http.StatusBadRequest, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}

func parseReportRequest(r *http.Request) (domain.ReportRequest, error) {
	query := r.URL.Query()
	from, err := report.ParseDate(query.Get("from"))
	if err != nil {
		return domain.ReportRequest{}, errors.New("from must be a date in YYYY-MM-DD format")
	}
	to, err := report.ParseDate(query.Get("to"))
	if err != nil {
		return domain.ReportRequest{}, errors.New("to must be a date in YYYY-MM-DD format")
	}
	req := domain.ReportRequest{From: from, To: to}
	if raw := strings.TrimSpace(query.Get("top")); raw != "" {
		top, err := strconv.Atoi(raw)
		if err != nil {
			return domain.ReportRequest{}, errors.New("top must be a whole number")
		}
		req.Top = &top
	}
	return req, nil
}

func parsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func parseOptionalID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func attachment(fileName string) string {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": fileName})
	if disposition == "" {
		return fmt.Sprintf("attachment; filename=%q", "report")
	}
	return disposition
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.Is(err, service.ErrForbidden):
		a.writeError(w, r, http.StatusForbidden, err)
	case errors.As(err, &conflict):
		a.writeError(w, r, http.StatusConflict, conflict)
	case errors.Is(err, store.ErrConflict):
		a.writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, archive.ErrValidation):
		a.writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		a.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	default:
		a.writeError(w, r, http.StatusInternalServerError, err)
	}
}

// writeError hides 5xx causes from clients; they are logged instead.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
