package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skylane/booking/internal/domain"
	"github.com/skylane/booking/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	FlightID  int64  `json:"flight_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	NoOfSeats int    `json:"no_of_seats" binding:"required"`
	Status    string `json:"status"`
}

type confirmPaymentRequest struct {
	UserID         int64 `json:"user_id" binding:"required"`
	TotalCostCents int64 `json:"total_cost" binding:"required"`
}

type bookingResponse struct {
	ID             string `json:"id"`
	FlightID       int64  `json:"flight_id"`
	UserID         int64  `json:"user_id"`
	NoOfSeats      int    `json:"no_of_seats"`
	TotalCostCents int64  `json:"total_cost"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/payments", h.confirmPayment)
	router.DELETE("/:id", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		FlightID:  req.FlightID,
		UserID:    req.UserID,
		NoOfSeats: req.NoOfSeats,
		Status:    domain.BookingStatus(req.Status),
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toResponse(created))
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

func (h *BookingHandler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ConfirmPayment(c.Request.Context(), booking.ConfirmPaymentInput{
		BookingID:      c.Param("id"),
		UserID:         req.UserID,
		TotalCostCents: req.TotalCostCents,
		IdempotencyKey: c.GetHeader("x-idempotency-key"),
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	if err := h.service.CancelBooking(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "booking cancelled"})
}

func toResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:             b.ID,
		FlightID:       b.FlightID,
		UserID:         b.UserID,
		NoOfSeats:      b.NoOfSeats,
		TotalCostCents: b.TotalCostCents,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
