package settlement

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/httpapi"
	"cashback-controlplane/pkg/middleware"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/identity"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func RegisterRoutes(api httpapi.APIGroup, s *Service) {
	h := &handler{svc: s}
	staff := middleware.RequireRoles(identity.RoleOps, identity.RoleAdmin)

	api.POST("/orders/verify", staff, h.verify)
	api.POST("/orders/settle", staff, h.settle)
	api.POST("/payouts/agency", middleware.RequireRoles(identity.RoleBrand, identity.RoleOps, identity.RoleAdmin), h.payAgency)
	api.POST("/mediators/:code/suspend", staff, h.suspendMediator)
	api.POST("/agencies/:code/suspend", staff, h.suspendAgency)
}

type verifyRequest struct {
	OrderID    int64   `json:"order_id,string" binding:"required"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

func (h *handler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	o, err := h.svc.VerifyPurchase(c.Request.Context(), req.OrderID, audit.ActorFrom(p), Outcome{
		Verified:   req.Verified,
		Confidence: req.Confidence,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o})
}

type settleRequest struct {
	OrderID int64 `json:"order_id,string" binding:"required"`
}

func (h *handler) settle(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	res, err := h.svc.SettleOrder(c.Request.Context(), req.OrderID, audit.ActorFrom(p))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

type payoutRequest struct {
	BrandID     string `json:"brand_id" binding:"required"`
	AgencyID    string `json:"agency_id" binding:"required"`
	Ref         string `json:"ref" binding:"required"`
	AmountPaise int64  `json:"amount_paise" binding:"required,gt=0"`
}

func (h *handler) payAgency(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	if !p.HasRole(identity.RoleOps, identity.RoleAdmin) && p.BrandCode != req.BrandID {
		_ = c.Error(errutil.Forbidden("brands may only pay from their own wallet", nil))
		return
	}

	res, err := h.svc.PayAgency(c.Request.Context(), PayoutRequest{
		BrandID:     req.BrandID,
		AgencyID:    req.AgencyID,
		Ref:         req.Ref,
		AmountPaise: req.AmountPaise,
		Actor:       audit.ActorFrom(p),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) suspendMediator(c *gin.Context) {
	h.suspend(c, h.svc.SuspendMediator)
}

func (h *handler) suspendAgency(c *gin.Context) {
	h.suspend(c, h.svc.SuspendAgency)
}

func (h *handler) suspend(c *gin.Context, fn func(ctx context.Context, code, reason string, actor audit.Actor) ([]int64, error)) {
	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	ids, err := fn(c.Request.Context(), c.Param("code"), req.Reason, audit.ActorFrom(p))
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"frozen": out}})
}
