package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/leozw/portfolio-guardian/internal/scheduler"
	"go.uber.org/zap"
)

func (h *Handler) ListSweeps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sweeps": h.sweeps.Status()})
}

// RunSweep runs one sweep synchronously and returns its summary.
func (h *Handler) RunSweep(c *gin.Context) {
	name := c.Param("name")

	summary, err := h.sweeps.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownSweep):
		c.JSON(http.StatusNotFound, gin.H{"error": "Sweep not found"})
		return
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "Sweep already running"})
		return
	case err != nil:
		h.logger.Error("On-demand sweep failed", zap.String("sweep", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ReviewSLA(c *gin.Context) {
	sum, err := h.sla.SLA(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to summarize review SLA", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load review tasks"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	unread := c.DefaultQuery("unread", "true") != "false"

	list, err := h.notifications.ListNotifications(c.Request.Context(), unread, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}
