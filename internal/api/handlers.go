// Package api exposes the purchase and catalog operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"warehouseservice/internal/product"
	"warehouseservice/internal/purchase"

	"go.uber.org/zap"
)

type Purchaser interface {
	Buy(ctx context.Context, productID string, quantity int) (purchase.Confirmation, error)
	BuyAndConfirm(ctx context.Context, productID string, quantity int) (purchase.Confirmation, error)
}

type Catalog interface {
	Get(ctx context.Context, id string) (product.Product, error)
	GetQuantity(ctx context.Context, id string) (int, error)
	Create(ctx context.Context, p product.Product) (product.Product, error)
}

type Handler struct {
	purchaser Purchaser
	catalog   Catalog
	logger    *zap.Logger
}

func NewHandler(purchaser Purchaser, catalog Catalog, logger *zap.Logger) *Handler {
	return &Handler{purchaser: purchaser, catalog: catalog, logger: logger}
}

// NewRouter registers the routes and wraps them with request id and logging middleware.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /buyProduct/{id}", h.buyProduct)
	mux.HandleFunc("GET /productCount/{id}", h.productCount)
	mux.HandleFunc("GET /products/{id}", h.getProduct)
	mux.HandleFunc("POST /products", h.createProduct)
	mux.HandleFunc("GET /healthz", h.health)
	return WithRequestID(WithLogging(h.logger, mux))
}

type buyRequest struct {
	Quantity int `json:"quantity"`
}

type buyResponse struct {
	Message   string `json:"message"`
	EventID   string `json:"eventId"`
	Remaining int    `json:"remaining"`
	Confirmed bool   `json:"confirmed"`
}

type quantityResponse struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) buyProduct(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	id := r.PathValue("id")
	buy := h.purchaser.Buy
	if r.URL.Query().Get("confirm") == "true" {
		buy = h.purchaser.BuyAndConfirm
	}

	conf, err := buy(r.Context(), id, req.Quantity)
	if err != nil {
		h.logger.Warn("Buy failed",
			zap.String("product_id", id),
			zap.Int("quantity", req.Quantity),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buyResponse{
		Message:   conf.Message,
		EventID:   conf.EventID,
		Remaining: conf.Remaining,
		Confirmed: conf.Confirmed,
	})
}

func (h *Handler) productCount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, err := h.catalog.GetQuantity(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quantityResponse{ID: id, Quantity: q})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	p.Version = 0

	created, err := h.catalog.Create(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
