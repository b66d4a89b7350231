package order

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"cashback-controlplane/pkg/db/pagination"
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

	g := api.Group("/orders")
	g.POST("", middleware.RequireRoles(identity.RoleShopper), h.create)
	g.GET("", h.listMine)
	g.POST("/freeze", staff, h.freeze)
	g.GET("/:id", h.get)
	g.DELETE("/:id", staff, h.delete)
	g.POST("/:id/transition", staff, h.transition)
	g.POST("/:id/reactivate", staff, h.reactivate)
	g.POST("/:id/verifications", staff, h.verify)
}

type createRequest struct {
	DealID       string       `json:"deal_id" binding:"required"`
	BrandID      string       `json:"brand_id"`
	MediatorCode string       `json:"mediator_code"`
	AgencyCode   string       `json:"agency_code"`
	Items        []ItemParams `json:"items" binding:"required,min=1"`
}

func (h *handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	mediator := req.MediatorCode
	if mediator == "" {
		mediator = p.ParentCode
	}

	o, err := h.svc.Create(c.Request.Context(), CreateParams{
		ShopperID:    p.UserID,
		BrandID:      req.BrandID,
		MediatorCode: mediator,
		AgencyCode:   req.AgencyCode,
		DealID:       req.DealID,
		Items:        req.Items,
		Actor:        audit.ActorFrom(p),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": o})
}

func (h *handler) listMine(c *gin.Context) {
	var q pagination.Pagination
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	rows, info, err := h.svc.ListByShopper(c.Request.Context(), p.UserID, q)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}

func (h *handler) get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	o, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	if !CanView(p, o) {
		// do not reveal that the order exists
		_ = c.Error(ErrNotFound(id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o})
}

// CanView reports whether p may read o.
func CanView(p *middleware.Principal, o *Order) bool {
	if p == nil {
		return false
	}
	if p.HasRole(identity.RoleOps, identity.RoleAdmin) || p.UserID == o.ShopperID {
		return true
	}
	return (p.MediatorCode != "" && p.MediatorCode == o.MediatorCode) ||
		(p.AgencyCode != "" && p.AgencyCode == o.AgencyCode) ||
		(p.BrandCode != "" && p.BrandCode == o.BrandID)
}

type transitionRequest struct {
	From Status `json:"from" binding:"required"`
	To   Status `json:"to" binding:"required"`
	Note string `json:"note"`
}

func (r transitionRequest) validate() error {
	for _, s := range []Status{r.From, r.To} {
		if !s.Valid() {
			return ErrUnknownStatus(s)
		}
	}
	return nil
}

func (h *handler) transition(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := req.validate(); err != nil {
		_ = c.Error(err)
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	o, err := h.svc.Transition(c.Request.Context(), TransitionRequest{
		OrderID: id,
		From:    req.From,
		To:      req.To,
		Actor:   audit.ActorFrom(p),
		Details: Details{Note: req.Note},
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) reactivate(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	o, err := h.svc.Reactivate(c.Request.Context(), id, audit.ActorFrom(p), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o})
}

type freezeRequest struct {
	FreezeQuery
	Reason string `json:"reason" binding:"required"`
}

func (h *handler) freeze(c *gin.Context) {
	var req freezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	ids, err := h.svc.Freeze(c.Request.Context(), req.FreezeQuery, req.Reason, audit.ActorFrom(p))
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

type verifyRequest struct {
	Step Step `json:"step" binding:"required"`
}

func (h *handler) verify(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	o, err := h.svc.RecordVerification(c.Request.Context(), id, req.Step, audit.ActorFrom(p))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o})
}

func (h *handler) delete(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	if err := h.svc.SoftDelete(c.Request.Context(), id, audit.ActorFrom(p)); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(errutil.BadRequest("invalid order id", err))
		return 0, false
	}
	return id, true
}
