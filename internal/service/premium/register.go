package premium

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/datenight/internal/app"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// Registrar ties the premium service into the HTTP router.
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the premium service.
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the subscription routes.
func (r *Registrar) Register(router *gin.RouterGroup) {
	svc := NewService(r.appCtx)
	h := &handler{svc: svc}

	router.POST("/users/:id/premium", h.activate)
	router.GET("/users/:id/premium", h.status)
	router.GET("/users/:id/premium/history", h.history)
}

type handler struct {
	svc *Service
}

// activateRequest carries the confirmed-purchase event from the payment
// collaborator. Either plan_id (catalog) or the explicit plan fields.
type activateRequest struct {
	PlanID       string `json:"plan_id"`
	PlanName     string `json:"plan_name"`
	StarsCost    int    `json:"stars_cost"`
	DurationDays int    `json:"duration_days"`
	PaymentRef   string `json:"payment_ref"`
}

func (h *handler) activate(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var receipt *Receipt
	var err error
	if req.PlanID != "" {
		receipt, err = h.svc.ActivatePlan(c.Request.Context(), userID, req.PlanID, req.PaymentRef)
	} else {
		receipt, err = h.svc.Activate(c.Request.Context(), userID, req.PlanName, req.StarsCost, req.DurationDays, req.PaymentRef)
	}
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (h *handler) status(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	st, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) history(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	records, err := h.svc.History(c.Request.Context(), userID)
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseUserID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a valid user id"})
		return 0, false
	}
	return id, true
}
