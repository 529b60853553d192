package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-bot/internal/service"
)

type OperatorHandler struct {
	ops service.OperatorRegistry
}

func NewOperatorHandler(ops service.OperatorRegistry) *OperatorHandler {
	return &OperatorHandler{ops: ops}
}

// List — активные операторы канала темы (?group_id=).
func (h *OperatorHandler) List(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Query("group_id"), 10, 64)
	if err != nil || groupID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group_id is required"})
		return
	}
	items, err := h.ops.ListActive(c.Request.Context(), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operators": items})
}
