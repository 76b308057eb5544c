package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/services"
)

type stubBroadcastService struct {
	cmd    services.BroadcastCommand
	report services.BroadcastReport
	err    error
}

func (s *stubBroadcastService) Send(_ context.Context, cmd services.BroadcastCommand) (services.BroadcastReport, error) {
	s.cmd = cmd
	return s.report, s.err
}

type stubExportService struct {
	export services.OrderExport
	err    error
}

func (s *stubExportService) ExportOrders(context.Context) (services.OrderExport, error) {
	return s.export, s.err
}

type stubCatalogImportService struct {
	imported  services.CatalogImport
	result    services.CatalogImportResult
	importErr error
	deletedID string
	deleteErr error
}

func (s *stubCatalogImportService) Import(_ context.Context, catalog services.CatalogImport) (services.CatalogImportResult, error) {
	s.imported = catalog
	return s.result, s.importErr
}

func (s *stubCatalogImportService) DeleteProduct(_ context.Context, productID string) error {
	s.deletedID = productID
	return s.deleteErr
}

func newAdminRouter(deps AdminHandlersDeps) chi.Router {
	router := chi.NewRouter()
	NewAdminHandlers(deps).Routes(router)
	return router
}

func TestAdminHandlers_SendBroadcast(t *testing.T) {
	sentAt := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubBroadcastService{report: services.BroadcastReport{
		Broadcast: domain.Broadcast{ID: "bc_1", Title: "Скидки", Message: "Всё по 100", Sent: true, SentAt: &sentAt},
		Result:    domain.BroadcastResult{Succeeded: []int64{1, 3}, Failed: []int64{2}},
	}}
	router := newAdminRouter(AdminHandlersDeps{Broadcasts: svc})

	payload, _ := json.Marshal(map[string]any{"title": "Скидки", "message": "Всё по 100", "recipients": []int64{1, 2, 3}})
	req := httptest.NewRequest(http.MethodPost, "/broadcasts", bytes.NewReader(payload))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.cmd.Title != "Скидки" || len(svc.cmd.Recipients) != 3 {
		t.Fatalf("unexpected command %+v", svc.cmd)
	}
	var body broadcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "bc_1" || !body.Sent {
		t.Fatalf("unexpected response %+v", body)
	}
	if body.SentAt != "2024-06-01T12:00:00Z" {
		t.Fatalf("expected sentAt to be RFC3339, got %q", body.SentAt)
	}
	if len(body.Succeeded) != 2 || len(body.Failed) != 1 || body.Failed[0] != 2 {
		t.Fatalf("unexpected partition succeeded=%v failed=%v", body.Succeeded, body.Failed)
	}
}

func TestAdminHandlers_SendBroadcastValidation(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed json", body: `{"title":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"title":"a","message":"b","extra":1}`, status: http.StatusBadRequest},
		{name: "empty title", body: `{"title":"","message":"b"}`, err: services.ErrBroadcastInvalidInput, status: http.StatusBadRequest},
		{name: "store down", body: `{"title":"a","message":"b"}`, err: errors.Join(services.ErrBroadcastUnavailable, errors.New("boom")), status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAdminRouter(AdminHandlersDeps{Broadcasts: &stubBroadcastService{err: tc.err}})
			req := httptest.NewRequest(http.MethodPost, "/broadcasts", strings.NewReader(tc.body))
			resp := httptest.NewRecorder()

			router.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestAdminHandlers_ExportOrders(t *testing.T) {
	svc := &stubExportService{export: services.OrderExport{
		FileName:    "orders_20240601_120000.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        []byte("xlsx-bytes"),
		Orders:      4,
	}}
	router := newAdminRouter(AdminHandlersDeps{Exports: svc})

	req := httptest.NewRequest(http.MethodGet, "/orders/export", nil)
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="orders_20240601_120000.xlsx"` {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if got := resp.Header().Get("X-Order-Count"); got != "4" {
		t.Fatalf("expected order count 4, got %q", got)
	}
	if resp.Body.String() != "xlsx-bytes" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestAdminHandlers_ExportUnavailable(t *testing.T) {
	router := newAdminRouter(AdminHandlersDeps{Exports: &stubExportService{err: errors.Join(services.ErrExportUnavailable, errors.New("db"))}})

	req := httptest.NewRequest(http.MethodGet, "/orders/export", nil)
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestAdminHandlers_ImportCatalogYAML(t *testing.T) {
	svc := &stubCatalogImportService{result: services.CatalogImportResult{Categories: 1, Subcategories: 1, Products: 2}}
	router := newAdminRouter(AdminHandlersDeps{Catalog: svc})

	body := `
categories:
  - name: Одежда
    subcategories:
      - name: Футболки
        products:
          - description: Белая футболка
            image: white.jpg
          - description: Чёрная футболка
`
	req := httptest.NewRequest(http.MethodPost, "/catalog/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/yaml")
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.imported.Categories) != 1 || len(svc.imported.Categories[0].Subcategories[0].Products) != 2 {
		t.Fatalf("unexpected parsed catalog %+v", svc.imported)
	}
	var result services.CatalogImportResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Products != 2 {
		t.Fatalf("expected 2 products, got %d", result.Products)
	}
}

func TestAdminHandlers_ImportCatalogJSON(t *testing.T) {
	svc := &stubCatalogImportService{}
	router := newAdminRouter(AdminHandlersDeps{Catalog: svc})

	body := `{"categories":[{"name":"Обувь","subcategories":[{"name":"Кеды","products":[{"description":"Белые кеды"}]}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/catalog/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.imported.Categories[0].Subcategories[0].Name != "Кеды" {
		t.Fatalf("unexpected parsed catalog %+v", svc.imported)
	}
}

func TestAdminHandlers_ImportCatalogErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid", err: services.ErrCatalogInvalidInput, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "conflict", err: errors.Join(services.ErrCatalogConflict, errors.New("dup")), status: http.StatusConflict, code: "catalog_conflict"},
		{name: "unavailable", err: errors.Join(services.ErrCatalogUnavailable, errors.New("down")), status: http.StatusServiceUnavailable, code: "service_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAdminRouter(AdminHandlersDeps{Catalog: &stubCatalogImportService{importErr: tc.err}})
			req := httptest.NewRequest(http.MethodPost, "/catalog/import", strings.NewReader(`categories: [{name: A}]`))
			resp := httptest.NewRecorder()

			router.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected error code %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestAdminHandlers_ImportCatalogMalformed(t *testing.T) {
	svc := &stubCatalogImportService{}
	router := newAdminRouter(AdminHandlersDeps{Catalog: svc})

	req := httptest.NewRequest(http.MethodPost, "/catalog/import", strings.NewReader("categories: [unclosed"))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if svc.imported.Categories != nil {
		t.Fatalf("expected import not to run")
	}
}

func TestAdminHandlers_DeleteProduct(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "deleted", status: http.StatusNoContent},
		{name: "referenced by orders", err: services.ErrCatalogProductInUse, status: http.StatusConflict},
		{name: "missing", err: services.ErrCatalogNotFound, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCatalogImportService{deleteErr: tc.err}
			router := newAdminRouter(AdminHandlersDeps{Catalog: svc})
			req := httptest.NewRequest(http.MethodDelete, "/catalog/products/p-1", nil)
			resp := httptest.NewRecorder()

			router.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if svc.deletedID != "p-1" {
				t.Fatalf("expected product p-1 to be deleted, got %q", svc.deletedID)
			}
		})
	}
}

func TestAdminHandlers_MissingServices(t *testing.T) {
	router := newAdminRouter(AdminHandlersDeps{})
	requests := []*http.Request{
		httptest.NewRequest(http.MethodPost, "/broadcasts", strings.NewReader(`{}`)),
		httptest.NewRequest(http.MethodGet, "/orders/export", nil),
		httptest.NewRequest(http.MethodPost, "/catalog/import", strings.NewReader(`{}`)),
		httptest.NewRequest(http.MethodDelete, "/catalog/products/p-1", nil),
	}
	for _, req := range requests {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: expected 503, got %d", req.Method, req.URL.Path, resp.Code)
		}
	}
}
