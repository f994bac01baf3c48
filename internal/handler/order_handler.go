// Package handler отображает HTTP-запросы витрины на сервис допуска
// заказов и переводит доменные отказы в коды ответов.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/domain"
)

// HeaderMemberID передаёт идентификатор участника.
// Аутентификация выполняется выше по стеку; шлюз кладёт проверенный id в заголовок.
const HeaderMemberID = "X-Member-Id"

// AdmissionService — операции допуска, нужные HTTP-слою.
type AdmissionService interface {
	CreateProductOrder(ctx context.Context, memberID, productID int64, qty int32, idemKey string) error
	CreateTimedealOrder(ctx context.Context, memberID, dealID int64, qty int32, idemKey string) error
	Status(ctx context.Context, memberID int64, idemKey string) (domain.PurchaseStatusRecord, error)
}

// OrderHandler обслуживает запросы на покупку и статус заказа.
type OrderHandler struct {
	admission AdmissionService
	logger    *log.Entry
}

// NewOrderHandler создаёт HTTP-обработчик заказов.
func NewOrderHandler(admission AdmissionService, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.WithField("component", "http-handler")
	}
	return &OrderHandler{admission: admission, logger: logger}
}

type purchaseRequest struct {
	Quantity       int32  `json:"quantity"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type purchaseResponse struct {
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type statusResponse struct {
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateProductOrder обрабатывает POST /api/products/:productId/purchase.
func (h *OrderHandler) CreateProductOrder(c *gin.Context) {
	memberID, ok := h.memberID(c)
	if !ok {
		return
	}
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := h.admission.CreateProductOrder(c.Request.Context(), memberID, productID, req.Quantity, req.IdempotencyKey)
	if err != nil {
		h.writeAdmissionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, purchaseResponse{
		Status:         string(domain.PurchaseStatusPending),
		IdempotencyKey: req.IdempotencyKey,
	})
}

// CreateTimedealOrder обрабатывает POST /api/timedeals/:dealId/purchase.
func (h *OrderHandler) CreateTimedealOrder(c *gin.Context) {
	memberID, ok := h.memberID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "dealId")
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := h.admission.CreateTimedealOrder(c.Request.Context(), memberID, dealID, req.Quantity, req.IdempotencyKey)
	if err != nil {
		h.writeAdmissionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, purchaseResponse{
		Status:         string(domain.PurchaseStatusPending),
		IdempotencyKey: req.IdempotencyKey,
	})
}

// GetPurchaseStatus обрабатывает GET /api/purchases/:idempotencyKey.
func (h *OrderHandler) GetPurchaseStatus(c *gin.Context) {
	memberID, ok := h.memberID(c)
	if !ok {
		return
	}

	key := c.Param("idempotencyKey")
	record, err := h.admission.Status(c.Request.Context(), memberID, key)
	if err != nil {
		if errors.Is(err, domain.ErrPurchaseStatusNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "purchase not found"})
			return
		}
		h.logger.WithError(err).Error("failed to load purchase status")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Status:         string(record.Status),
		Reason:         record.Reason,
		IdempotencyKey: record.IdempotencyKey,
	})
}

func (h *OrderHandler) memberID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(HeaderMemberID)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "member id header is required"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid member id header"})
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

// writeAdmissionError переводит доменный отказ в HTTP-статус.
func (h *OrderHandler) writeAdmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicatePurchase):
		c.JSON(http.StatusConflict, errorResponse{Error: "duplicate purchase request"})
	case errors.Is(err, domain.ErrOutOfStock):
		c.JSON(http.StatusConflict, errorResponse{Error: "product is out of stock"})
	case errors.Is(err, domain.ErrTimedealNotActive):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "timedeal is not active"})
	case errors.Is(err, domain.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "quantity must be positive"})
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "idempotency key is required"})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, errorResponse{Error: "requested entity not found"})
	default:
		h.logger.WithError(err).Error("order admission failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
