package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shearline/booking-core/internal/middleware"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/internal/service"
	"github.com/shearline/booking-core/pkg/logger"
)

// AppointmentHandler serves reservation creation and the lifecycle
// transitions of §6, dispatching to ReservationService/LifecycleService.
type AppointmentHandler struct {
	reservation *service.ReservationService
	lifecycle   *service.LifecycleService
	redis       *redis.Client
	idempoTTL   time.Duration
	logger      *logger.Logger
}

func NewAppointmentHandler(reservation *service.ReservationService, lifecycle *service.LifecycleService, redisClient *redis.Client, idempoTTL time.Duration, log *logger.Logger) *AppointmentHandler {
	return &AppointmentHandler{reservation: reservation, lifecycle: lifecycle, redis: redisClient, idempoTTL: idempoTTL, logger: log}
}

type customerInputRequest struct {
	CustomerType models.CustomerType `json:"customer_type" binding:"required,oneof=CASUAL FREQUENT"`
	Name         string              `json:"name"`
	Phone        string              `json:"phone"`
	BirthDate    string              `json:"birth_date"`
}

type createAppointmentRequest struct {
	OptionID string                `json:"option_id" binding:"required"`
	Customer customerInputRequest  `json:"customer" binding:"required"`
}

// CreatePublicAppointment handles POST /public/appointments.
func (h *AppointmentHandler) CreatePublicAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": err.Error()}})
		return
	}

	guardKey := c.GetHeader("Idempotency-Key")
	if guardKey != "" {
		guardKey = guardKey + ":" + req.OptionID
		claimed, err := repository.IdempotencyGuard(c.Request.Context(), h.redis, guardKey, h.idempoTTL)
		if err != nil {
			h.logger.Warn("idempotency guard check failed, proceeding without it", "error", err)
		} else if !claimed {
			c.JSON(http.StatusConflict, gin.H{"error": gin.H{"code": "conflict", "message": "a reservation with this idempotency key is already in progress"}})
			return
		}
	}

	input := service.CustomerInput{
		CustomerType: req.Customer.CustomerType,
		Name:         req.Customer.Name,
		Phone:        req.Customer.Phone,
	}
	if req.Customer.BirthDate != "" {
		bd, err := time.Parse("2006-01-02", req.Customer.BirthDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": "birth_date must be YYYY-MM-DD"}})
			return
		}
		input.BirthDate = &bd
	}

	role, _ := middleware.PrincipalRole(c)
	summary, err := h.reservation.Reserve(c.Request.Context(), role, req.OptionID, input)
	if err != nil {
		if guardKey != "" {
			repository.ReleaseIdempotencyKey(c.Request.Context(), h.redis, guardKey)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

// Cancel handles POST /appointments/{id}/cancel.
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.Cancel(c.Request.Context(), role, c.Param("id"), req.Reason, req.Force)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// MarkAttended handles POST /appointments/{id}/attend.
func (h *AppointmentHandler) MarkAttended(c *gin.Context) {
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.MarkAttended(c.Request.Context(), role, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// MarkNoShow handles POST /appointments/{id}/no-show.
func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.MarkNoShow(c.Request.Context(), role, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type registerPaymentRequest struct {
	PaidTotal     *int64 `json:"paid_total_cents" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

// PaymentSummary handles GET /appointments/{id}/payment-summary, the
// read-only charge summary supplemented from the original's
// AppointmentChargeSummaryAPIView.
func (h *AppointmentHandler) PaymentSummary(c *gin.Context) {
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.GetPaymentSummary(c.Request.Context(), role, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RegisterPayment handles POST /appointments/{id}/payment.
func (h *AppointmentHandler) RegisterPayment(c *gin.Context) {
	var req registerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": err.Error()}})
		return
	}
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.RegisterPayment(c.Request.Context(), role, c.Param("id"), *req.PaidTotal, req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type rescheduleRequest struct {
	NewOptionToken string `json:"new_option_token" binding:"required"`
	Reason         string `json:"reason"`
}

// Reschedule handles POST /staff/appointments/{id}/reschedule.
func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": err.Error()}})
		return
	}
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.Reschedule(c.Request.Context(), role, c.Param("id"), req.NewOptionToken, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type inlineEditRequest struct {
	StartDatetime *time.Time               `json:"start_datetime"`
	DurationMin   *int                     `json:"duration_minutes"`
	Status        *models.AppointmentStatus `json:"status"`
	Note          *string                  `json:"note"`
}

// InlineEdit handles POST /staff/appointments/{id}/inline-edit.
func (h *AppointmentHandler) InlineEdit(c *gin.Context) {
	var req inlineEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": err.Error()}})
		return
	}
	role, _ := middleware.PrincipalRole(c)
	summary, err := h.lifecycle.InlineEdit(c.Request.Context(), role, c.Param("id"), service.InlineEditInput{
		StartDatetime: req.StartDatetime, DurationMin: req.DurationMin, Status: req.Status, Note: req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
