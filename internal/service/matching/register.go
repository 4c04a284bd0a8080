package matching

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/datenight/internal/app"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// Registrar ties the matching service into the HTTP router.
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the matching service.
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the matching and lifecycle routes.
func (r *Registrar) Register(router *gin.RouterGroup) {
	svc := NewService(r.appCtx)
	h := &handler{svc: svc}

	router.POST("/users/:id/search", h.search)
	router.DELETE("/users/:id/search", h.cancelSearch)
	router.POST("/users/:id/reconnect", h.reconnect)
	router.GET("/users/:id/match", h.openMatch)
	router.POST("/users/:id/block", h.block)
	router.POST("/users/:id/report", h.report)
	router.POST("/matches/:id/end", h.endMatch)
	router.POST("/matches/:id/messages", h.sendMessage)
	router.GET("/matches/:id/messages", h.listMessages)
}

type handler struct {
	svc *Service
}

func (h *handler) search(c *gin.Context) {
	userID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.Search(c.Request.Context(), userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if result.Match == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "searching"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"match_id": result.Match.MatchID,
		"partner":  result.Partner,
	})
}

func (h *handler) reconnect(c *gin.Context) {
	userID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.Reconnect(c.Request.Context(), userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if result.Match == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "searching"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"match_id": result.Match.MatchID,
		"partner":  result.Partner,
	})
}

func (h *handler) cancelSearch(c *gin.Context) {
	userID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.CancelSearch(c.Request.Context(), userID); err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) openMatch(c *gin.Context) {
	userID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	match, err := h.svc.OpenMatch(c.Request.Context(), userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open match"})
		return
	}
	c.JSON(http.StatusOK, match)
}

type directedRequest struct {
	TargetID uint64 `json:"target_id" binding:"required"`
	Reason   string `json:"reason"`
}

func (h *handler) block(c *gin.Context) {
	userID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req directedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Block(c.Request.Context(), userID, req.TargetID, req.Reason); err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) report(c *gin.Context) {
	userID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req directedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Report(c.Request.Context(), userID, req.TargetID, req.Reason); err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type endMatchRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

func (h *handler) endMatch(c *gin.Context) {
	matchID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req endMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	match, err := h.svc.EndMatch(c.Request.Context(), matchID, req.UserID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, match)
}

type messageRequest struct {
	SenderID uint64 `json:"sender_id" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

func (h *handler) sendMessage(c *gin.Context) {
	matchID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), matchID, req.SenderID, req.Content)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *handler) listMessages(c *gin.Context) {
	matchID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	messages, err := h.svc.Messages(c.Request.Context(), matchID, userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func parsePathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a valid id"})
		return 0, false
	}
	return id, true
}
