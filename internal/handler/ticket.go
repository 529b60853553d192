package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/service"
)

const maxListLimit = 100

// TicketHandler — read-only доступ к заявкам для внутренних сервисов.
type TicketHandler struct {
	svc service.TicketServicer
}

func NewTicketHandler(svc service.TicketServicer) *TicketHandler {
	return &TicketHandler{svc: svc}
}

func (h *TicketHandler) Get(c *gin.Context) {
	no, ok := ticketNo(c)
	if !ok {
		return
	}
	t, err := h.svc.GetByNumber(c.Request.Context(), no)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Messages(c *gin.Context) {
	no, ok := ticketNo(c)
	if !ok {
		return
	}
	items, err := h.svc.Messages(c.Request.Context(), no)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": items})
}

func (h *TicketHandler) List(c *gin.Context) {
	filter := make(map[string]interface{})
	if v := c.Query("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id"})
			return
		}
		filter["client_id = ?"] = id
	}
	if v := strings.TrimPrefix(c.Query("username"), "@"); v != "" {
		filter["client_username = ?"] = v
	}
	if v := c.Query("status"); v != "" {
		status := model.TicketStatus(strings.ToUpper(v))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter["status = ?"] = status
	}
	if v := c.Query("category"); v != "" {
		cat, ok := model.ParseCategory(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
			return
		}
		filter["category = ?"] = cat
	}

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

func ticketNo(c *gin.Context) (int64, bool) {
	no, err := strconv.ParseInt(c.Param("no"), 10, 64)
	if err != nil || no <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket number"})
		return 0, false
	}
	return no, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	case errors.Is(err, errs.ErrOperatorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "operator not found"})
	case errors.Is(err, errs.ErrInvalidQuery), errors.Is(err, errs.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
