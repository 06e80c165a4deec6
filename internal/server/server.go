// Package server exposes the planning engine over HTTP (gin) and serves the
// standard gRPC health service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChuLiYu/mission-planner/internal/assessment"
	"github.com/ChuLiYu/mission-planner/internal/planning"
	"github.com/ChuLiYu/mission-planner/internal/session"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// logger resolves the default logger at call time so the CLI log settings apply.
func logger() *slog.Logger {
	return slog.Default().With("component", "server")
}

// Planner is the engine contract served over HTTP.
type Planner interface {
	Initiate(ctx context.Context, id types.MissionID, initiatorID string) (*session.Session, error)
	AddParticipant(ctx context.Context, id types.MissionID, participantID string) (*session.Session, error)
	UpdatePlanningData(ctx context.Context, id types.MissionID, updates types.Values, updatedBy string) (*session.Session, error)
	Approve(ctx context.Context, id types.MissionID, approverID, comment string) (*planning.TransitionResult, error)
	StartExecution(ctx context.Context, id types.MissionID, commanderID string) (*planning.TransitionResult, error)
	Complete(ctx context.Context, id types.MissionID, completedBy, notes string) (*planning.TransitionResult, error)
	Cancel(ctx context.Context, id types.MissionID, cancelledBy, reason string) (*planning.TransitionResult, error)
	Suspend(ctx context.Context, id types.MissionID, suspendedBy, reason string) (*planning.TransitionResult, error)
	GetSession(ctx context.Context, id types.MissionID) (*session.Session, error)
	AvailableTransitions(ctx context.Context, id types.MissionID) []planning.Event
	Assess(ctx context.Context, id types.MissionID) (*assessment.Assessment, error)
}

// NewRouter builds the gin engine with all planning routes.
func NewRouter(p Planner) *gin.Engine {
	g := gin.New()
	g.Use(requestLogger(), gin.Recovery())

	h := handlers{p: p}
	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	m := g.Group("/v1/missions/:id")
	m.GET("/assessment", h.assess)

	pl := m.Group("/planning")
	pl.POST("", h.initiate)
	pl.GET("", h.getSession)
	pl.POST("/participants", h.addParticipant)
	pl.PATCH("/data", h.updateData)
	pl.GET("/transitions", h.transitions)
	pl.POST("/approve", h.approve)
	pl.POST("/execute", h.execute)
	pl.POST("/complete", h.complete)
	pl.POST("/cancel", h.cancel)
	pl.POST("/suspend", h.suspend)

	return g
}

// NewHTTPServer wraps the router in an http.Server listening on addr.
func NewHTTPServer(addr string, p Planner) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(p),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger().Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

type handlers struct{ p Planner }

func missionID(c *gin.Context) (types.MissionID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad mission id"})
		return 0, false
	}
	return types.MissionID(id), true
}

// bind parses the mission id and JSON body, answering 400 on failure.
func bind(c *gin.Context, req any) (types.MissionID, bool) {
	id, ok := missionID(c)
	if !ok {
		return 0, false
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, planning.ErrNotFound), errors.Is(err, planning.ErrNoActiveSession):
		status = http.StatusNotFound
	case errors.Is(err, planning.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, planning.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger().Error("Planning request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func writeResult(c *gin.Context, res *planning.TransitionResult, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	if !res.Successful {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h handlers) initiate(c *gin.Context) {
	var req struct {
		InitiatorID string `json:"initiator_id" binding:"required"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	s, err := h.p.Initiate(c.Request.Context(), id, req.InitiatorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h handlers) getSession(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	s, err := h.p.GetSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h handlers) addParticipant(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	s, err := h.p.AddParticipant(c.Request.Context(), id, req.ParticipantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h handlers) updateData(c *gin.Context) {
	var req struct {
		UpdatedBy string       `json:"updated_by" binding:"required"`
		Updates   types.Values `json:"updates" binding:"required"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	s, err := h.p.UpdatePlanningData(c.Request.Context(), id, req.Updates, req.UpdatedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h handlers) transitions(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": h.p.AvailableTransitions(c.Request.Context(), id)})
}

func (h handlers) assess(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	a, err := h.p.Assess(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h handlers) approve(c *gin.Context) {
	var req struct {
		ApproverID string `json:"approver_id" binding:"required"`
		Comment    string `json:"comment"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	res, err := h.p.Approve(c.Request.Context(), id, req.ApproverID, req.Comment)
	writeResult(c, res, err)
}

func (h handlers) execute(c *gin.Context) {
	var req struct {
		CommanderID string `json:"commander_id" binding:"required"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	res, err := h.p.StartExecution(c.Request.Context(), id, req.CommanderID)
	writeResult(c, res, err)
}

func (h handlers) complete(c *gin.Context) {
	var req struct {
		CompletedBy string `json:"completed_by" binding:"required"`
		Notes       string `json:"notes"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	res, err := h.p.Complete(c.Request.Context(), id, req.CompletedBy, req.Notes)
	writeResult(c, res, err)
}

func (h handlers) cancel(c *gin.Context) {
	var req struct {
		CancelledBy string `json:"cancelled_by" binding:"required"`
		Reason      string `json:"reason"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	res, err := h.p.Cancel(c.Request.Context(), id, req.CancelledBy, req.Reason)
	writeResult(c, res, err)
}

func (h handlers) suspend(c *gin.Context) {
	var req struct {
		SuspendedBy string `json:"suspended_by" binding:"required"`
		Reason      string `json:"reason"`
	}
	id, ok := bind(c, &req)
	if !ok {
		return
	}
	res, err := h.p.Suspend(c.Request.Context(), id, req.SuspendedBy, req.Reason)
	writeResult(c, res, err)
}
