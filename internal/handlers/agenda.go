package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shearline/booking-core/internal/middleware"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/internal/service"
	"github.com/shearline/booking-core/pkg/logger"
)

// AgendaHandler serves the staff and worker day views of §6/§4.7.
type AgendaHandler struct {
	service *service.AgendaService
	logger  *logger.Logger
}

func NewAgendaHandler(svc *service.AgendaService, log *logger.Logger) *AgendaHandler {
	return &AgendaHandler{service: svc, logger: log}
}

// StaffAgenda handles GET /agenda/staff?date=&worker_id=&status=&q=.
func (h *AgendaHandler) StaffAgenda(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": "date must be YYYY-MM-DD"}})
		return
	}
	filters := repository.StaffAgendaFilters{
		WorkerID: c.Query("worker_id"),
		Status:   models.AppointmentStatus(c.Query("status")),
		Query:    c.Query("q"),
	}
	rows, err := h.service.StaffAgenda(c.Request.Context(), date, filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": rows})
}

// MyAgenda handles GET /agenda/my — the worker day view for the principal
// bound to the caller.
func (h *AgendaHandler) MyAgenda(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation", "message": "date must be YYYY-MM-DD"}})
		return
	}
	workerID := middleware.PrincipalWorkerID(c)
	rows, err := h.service.WorkerAgenda(c.Request.Context(), workerID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": rows})
}
