package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shearline/booking-core/internal/service"
	"github.com/shearline/booking-core/pkg/logger"
)

// AvailabilityHandler serves the public option-generation endpoint (§6).
type AvailabilityHandler struct {
	service *service.AvailabilityService
	logger  *logger.Logger
}

func NewAvailabilityHandler(svc *service.AvailabilityService, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc, logger: log}
}

type generateOptionsRequest struct {
	Date                string                `json:"date" binding:"required"`
	ServiceIDs          []string              `json:"service_ids" binding:"required,min=1"`
	BarberChoice        service.BarberChoice  `json:"barber_choice" binding:"required,oneof=SPECIFIC NEAREST"`
	BarberID            string                `json:"barber_id"`
	SlotIntervalMinutes int                   `json:"slot_interval_minutes"`
	Limit               int                   `json:"limit"`
	TimeWindow          *timeWindowRequest    `json:"time_window"`
}

type timeWindowRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

// GenerateOptions handles POST /availability/options.
func (h *AvailabilityHandler) GenerateOptions(c *gin.Context) {
	var req generateOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": err.Error()}})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": "date must be YYYY-MM-DD"}})
		return
	}

	svcReq := service.GenerateOptionsRequest{
		Date: date, ServiceIDs: req.ServiceIDs, BarberChoice: req.BarberChoice, BarberID: req.BarberID,
		SlotIntervalMinutes: req.SlotIntervalMinutes, Limit: req.Limit,
	}
	if req.TimeWindow != nil {
		svcReq.Window = &service.TimeWindow{Start: req.TimeWindow.Start, End: req.TimeWindow.End}
	}

	options, err := h.service.GenerateOptions(c.Request.Context(), svcReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}
