package profile

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/datenight/internal/app"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// Registrar ties the profile service into the HTTP router.
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the profile service.
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the profile routes.
func (r *Registrar) Register(router *gin.RouterGroup) {
	svc := NewService(r.appCtx)
	h := &handler{svc: svc}

	router.POST("/users", h.register)
	router.GET("/users/:id", h.get)
	router.PUT("/users/:id/profile", h.completeProfile)
	router.PUT("/users/:id/admin-block", h.adminBlock)
}

type handler struct {
	svc *Service
}

type registerRequest struct {
	UserID   uint64 `json:"user_id" binding:"required"`
	Username string `json:"username"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req.UserID, req.Username)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *handler) get(c *gin.Context) {
	userID, ok := parseID(c)
	if !ok {
		return
	}

	user, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

type profileRequest struct {
	Age        int    `json:"age" binding:"required"`
	Gender     string `json:"gender" binding:"required"`
	Preference string `json:"preference" binding:"required"`
	City       string `json:"city" binding:"required"`
}

func (h *handler) completeProfile(c *gin.Context) {
	userID, ok := parseID(c)
	if !ok {
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.CompleteProfile(c.Request.Context(), userID, req.Age, req.Gender, req.Preference, req.City)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

type adminBlockRequest struct {
	Blocked bool `json:"blocked"`
}

func (h *handler) adminBlock(c *gin.Context) {
	userID, ok := parseID(c)
	if !ok {
		return
	}

	var req adminBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SetAdminBlock(c.Request.Context(), userID, req.Blocked); err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// parseID reads the :id path parameter; responds 400 on garbage.
func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a valid user id"})
		return 0, false
	}
	return id, true
}
