package adminhttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bastion/internal/audit"
	"bastion/internal/statemachine"
	"bastion/internal/store"
	"bastion/internal/store/model"
)

// Router exposes the read and watchlist-management endpoints.
type Router struct {
	Audit   *audit.Store
	Machine *statemachine.Machine
	Storage store.Store
}

func NewRouter(auditStore *audit.Store, machine *statemachine.Machine, storage store.Store) *Router {
	return &Router{Audit: auditStore, Machine: machine, Storage: storage}
}

// Register mounts the endpoints on the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/audit/entries", r.handleAuditEntries)
	group.GET("/audit/stats", r.handleAuditStats)
	group.GET("/states", r.handleStates)
	group.GET("/states/:symbol", r.handleStateBySymbol)
	group.GET("/positions", r.handlePositions)
	group.GET("/trades", r.handleTrades)
	group.GET("/signals", r.handleSignals)
	group.GET("/tasks", r.handleListTasks)
	group.POST("/tasks", r.handleCreateTask)
	group.DELETE("/tasks/:symbol", r.handleDeleteTask)
}

func (r *Router) handleAuditEntries(c *gin.Context) {
	if r.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store unavailable"})
		return
	}
	q := audit.Query{
		Symbol: c.Query("symbol"),
		Day:    c.Query("day"),
		Kind:   c.Query("kind"),
		Limit:  intQuery(c, "limit", 100),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		q.Since = t
	}
	entries, err := r.Audit.List(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (r *Router) handleAuditStats(c *gin.Context) {
	if r.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store unavailable"})
		return
	}
	stats, err := r.Audit.Stats(audit.Query{
		Symbol: c.Query("symbol"),
		Day:    c.Query("day"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (r *Router) handleStates(c *gin.Context) {
	if r.Machine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state machine unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"states": r.Machine.All()})
}

func (r *Router) handleStateBySymbol(c *gin.Context) {
	if r.Machine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state machine unavailable"})
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	c.JSON(http.StatusOK, r.Machine.Snapshot(symbol))
}

func (r *Router) handlePositions(c *gin.Context) {
	if r.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	positions, err := r.Storage.Positions().ListOpen(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	trades, err := r.Storage.Trades().ListRecent(c.Request.Context(),
		c.Query("symbol"), intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (r *Router) handleSignals(c *gin.Context) {
	if r.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	signals, err := r.Storage.Signals().ListRecent(c.Request.Context(),
		c.Query("symbol"), intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (r *Router) handleListTasks(c *gin.Context) {
	if r.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	tasks, err := r.Storage.Tasks().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

type createTaskRequest struct {
	Symbol      string  `json:"symbol" binding:"required"`
	MaxNotional float64 `json:"max_notional"`
	Active      *bool   `json:"active"`
}

func (r *Router) handleCreateTask(c *gin.Context) {
	if r.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := model.TaskStatusActive
	if req.Active != nil && !*req.Active {
		status = model.TaskStatusPaused
	}
	task := &model.StrategyTaskModel{
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Status:      status,
		MaxNotional: req.MaxNotional,
	}
	if existing, err := r.Storage.Tasks().FindBySymbol(c.Request.Context(), task.Symbol); err == nil {
		task.ID = existing.ID
		task.CreatedAtUnix = existing.CreatedAtUnix
	}
	if err := r.Storage.Tasks().Save(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (r *Router) handleDeleteTask(c *gin.Context) {
	if r.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	ctx := c.Request.Context()
	if _, err := r.Storage.Tasks().FindBySymbol(ctx, symbol); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := r.Storage.Tasks().Delete(ctx, symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": symbol})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
