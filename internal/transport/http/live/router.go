package livehttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"getrader/internal/analysis/visual"
	"getrader/internal/engine"
	"getrader/internal/registry"
	"getrader/internal/scheduler"
	"getrader/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Router 暴露会话与模型接口。
type Router struct {
	Sessions SessionService
	Models   ModelService
}

func NewRouter(sessions SessionService, models ModelService) *Router {
	return &Router{Sessions: sessions, Models: models}
}

// Register 将路由挂载到 /api 分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	if r.Sessions != nil {
		s := group.Group("/sessions")
		s.POST("", r.handleCreateSession)
		s.GET("", r.handleListSessions)
		s.GET("/:id", r.handleGetSession)
		s.POST("/:id/pause", r.handlePause)
		s.POST("/:id/resume", r.handleResume)
		s.POST("/:id/end", r.handleEnd)
		s.POST("/:id/cycle", r.handleCycle)
		s.GET("/:id/performance", r.handlePerformance)
		s.GET("/:id/analytics", r.handleAnalytics)
		s.GET("/:id/decisions", r.handleDecisions)
		s.GET("/:id/adaptive", r.handleAdaptive)
		s.GET("/:id/learning", r.handleLearning)
		s.GET("/:id/equity", r.handleEquity)
		s.GET("/:id/equity/chart", r.handleEquityChart)
		group.GET("/market/patterns", r.handleMarketPatterns)
	}
	if r.Models != nil {
		m := group.Group("/models")
		m.POST("", r.handleSaveModel)
		m.GET("/comparison", r.handleModelComparison)
		m.GET("/production", r.handleProductionModel)
		m.GET("/:id", r.handleGetModel)
		m.POST("/:id/promote", r.handlePromoteModel)
		m.POST("/:id/archive", r.handleArchiveModel)
	}
}

func (r *Router) handleCreateSession(c *gin.Context) {
	var req session.CreateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
			return
		}
	}
	s, err := r.Sessions.StartSession(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (r *Router) handleListSessions(c *gin.Context) {
	list := r.Sessions.ListSessions()
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	if status != "" {
		filtered := list[:0]
		for _, s := range list {
			if string(s.Status) == status {
				filtered = append(filtered, s)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
}

func (r *Router) handleGetSession(c *gin.Context) {
	sum, err := r.Sessions.SessionSummary(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (r *Router) handlePause(c *gin.Context) {
	r.transition(c, r.Sessions.PauseSession)
}

func (r *Router) handleResume(c *gin.Context) {
	r.transition(c, r.Sessions.ResumeSession)
}

func (r *Router) handleEnd(c *gin.Context) {
	r.transition(c, r.Sessions.EndSession)
}

func (r *Router) transition(c *gin.Context, fn func(string) (session.Session, error)) {
	s, err := fn(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (r *Router) handleCycle(c *gin.Context) {
	rep, err := r.Sessions.RunCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handlePerformance(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("window"))
	d, ok := scheduler.ParseIntervalDuration(raw)
	if raw != "" && raw != "all" && !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 window: " + raw})
		return
	}
	snap, err := r.Sessions.Performance(c.Param("id"), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleAnalytics(c *gin.Context) {
	a, err := r.Sessions.Analytics(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (r *Router) handleMarketPatterns(c *gin.Context) {
	res, err := r.Sessions.MarketPatterns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

func (r *Router) handleDecisions(c *gin.Context) {
	ds, err := r.Sessions.Decisions(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": ds, "count": len(ds)})
}

func (r *Router) handleAdaptive(c *gin.Context) {
	snap, err := r.Sessions.Adaptive(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleLearning(c *gin.Context) {
	recs, err := r.Sessions.LearningHistory(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func (r *Router) handleEquity(c *gin.Context) {
	points, err := r.Sessions.Equity(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (r *Router) handleEquityChart(c *gin.Context) {
	id := c.Param("id")
	outcomes, err := r.Sessions.Outcomes(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(outcomes) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无已结算交易"})
		return
	}
	html, err := visual.RenderEquityHTML(visual.EquityInput{Title: "Session " + id, Outcomes: outcomes})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (r *Router) handleSaveModel(c *gin.Context) {
	var req saveModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
		return
	}
	m, err := r.Models.SaveModelWithMetadata(c.Request.Context(), req.ModelID, req.Version, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (r *Router) handleModelComparison(c *gin.Context) {
	rows, err := r.Models.GetModelPerformanceComparison(c.Request.Context(), parseLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": rows, "count": len(rows)})
}

func (r *Router) handleProductionModel(c *gin.Context) {
	m, err := r.Models.ProductionModel(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *Router) handleGetModel(c *gin.Context) {
	m, err := r.Models.Model(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *Router) handlePromoteModel(c *gin.Context) {
	m, err := r.Models.SetModelAsProduction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *Router) handleArchiveModel(c *gin.Context) {
	m, err := r.Models.ArchiveModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func parseLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// writeError 把领域错误映射到 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, registry.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionCompleted),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, engine.ErrSessionNotRunning),
		errors.Is(err, registry.ErrModelExists),
		errors.Is(err, registry.ErrInvalidStatus):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrInvalidVersion):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
