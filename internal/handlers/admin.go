package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/platform/httpx"
	"github.com/hanko-field/storebot/internal/platform/requestctx"
	"github.com/hanko-field/storebot/internal/services"
)

const (
	maxBroadcastRequestBody = 64 * 1024
	maxCatalogRequestBody   = 1024 * 1024
)

// AdminHandlers exposes the operator endpoints: broadcasts, order export and catalog maintenance.
type AdminHandlers struct {
	broadcasts services.BroadcastService
	exports    services.ExportService
	catalog    services.CatalogImportService
}

// AdminHandlersDeps wires the services behind the admin endpoints. Nil services answer 503.
type AdminHandlersDeps struct {
	Broadcasts services.BroadcastService
	Exports    services.ExportService
	Catalog    services.CatalogImportService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		broadcasts: deps.Broadcasts,
		exports:    deps.Exports,
		catalog:    deps.Catalog,
	}
}

// Routes registers admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/broadcasts", h.sendBroadcast)
	r.Get("/orders/export", h.exportOrders)
	r.Route("/catalog", func(rt chi.Router) {
		rt.Post("/import", h.importCatalog)
		rt.Delete("/products/{productID}", h.deleteProduct)
	})
}

type broadcastRequest struct {
	Title      string  `json:"title"`
	Message    string  `json:"message"`
	Recipients []int64 `json:"recipients"`
}

type broadcastResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Sent      bool    `json:"sent"`
	SentAt    string  `json:"sentAt,omitempty"`
	Succeeded []int64 `json:"succeeded"`
	Failed    []int64 `json:"failed"`
}

func (h *AdminHandlers) sendBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.broadcasts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "broadcast service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req broadcastRequest
	if err := decodeJSON(r, maxBroadcastRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	report, err := h.broadcasts.Send(ctx, services.BroadcastCommand{
		Title:      req.Title,
		Message:    req.Message,
		Recipients: req.Recipients,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBroadcastInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "title and message are required", http.StatusBadRequest))
		case errors.Is(err, services.ErrBroadcastUnavailable):
			writeUnavailable(ctx, w, "broadcast", err)
		default:
			writeInternal(ctx, w, "broadcast", err)
		}
		return
	}

	resp := broadcastResponse{
		ID:        report.Broadcast.ID,
		Title:     report.Broadcast.Title,
		Message:   report.Broadcast.Message,
		Sent:      report.Broadcast.Sent,
		Succeeded: nonNilIDs(report.Result.Succeeded),
		Failed:    nonNilIDs(report.Result.Failed),
	}
	if report.Broadcast.SentAt != nil {
		resp.SentAt = report.Broadcast.SentAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *AdminHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "export service unavailable", http.StatusServiceUnavailable))
		return
	}
	export, err := h.exports.ExportOrders(ctx)
	if err != nil {
		if errors.Is(err, services.ErrExportUnavailable) {
			writeUnavailable(ctx, w, "export", err)
			return
		}
		writeInternal(ctx, w, "export", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.Header().Set("X-Order-Count", fmt.Sprint(export.Orders))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (h *AdminHandlers) importCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCatalogRequestBody+1))
	_ = r.Body.Close()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read body", http.StatusBadRequest))
		return
	}
	if len(body) > maxCatalogRequestBody {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "catalog file is too large", http.StatusRequestEntityTooLarge))
		return
	}

	// yaml.v3 also accepts JSON documents.
	catalog, err := services.ParseCatalogImport(body)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	result, err := h.catalog.Import(ctx, catalog)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductInUse):
		httpx.WriteError(ctx, w, httpx.NewError("product_in_use", "product is referenced by existing orders", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", "catalog entry conflicts with existing data", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		writeUnavailable(ctx, w, "catalog", err)
	default:
		writeInternal(ctx, w, "catalog", err)
	}
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, component string, err error) {
	requestctx.Logger(ctx).Error("admin dependency unavailable", zap.String("component", component), zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", component+" store unavailable", http.StatusServiceUnavailable))
}

func writeInternal(ctx context.Context, w http.ResponseWriter, component string, err error) {
	requestctx.Logger(ctx).Error("admin request failed", zap.String("component", component), zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

func decodeJSON(r *http.Request, limit int64, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
