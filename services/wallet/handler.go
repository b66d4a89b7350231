package wallet

import (
	"net/http"
	"strings"

	"cashback-controlplane/pkg/db/pagination"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/httpapi"
	"cashback-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(api httpapi.APIGroup, s *Service) {
	g := api.Group("/wallets/:ownerId", canViewWallet())
	g.GET("", func(c *gin.Context) {
		w, err := s.GetWallet(c.Request.Context(), c.Param("ownerId"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": w})
	})
	g.GET("/transactions", func(c *gin.Context) {
		var p pagination.Pagination
		if err := c.ShouldBindQuery(&p); err != nil {
			_ = c.Error(errutil.BadRequest("invalid pagination", err))
			return
		}

		rows, info, err := s.ListTransactions(c.Request.Context(), c.Param("ownerId"), p)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
	})
}

// canViewWallet lets through ops and admins, and owners looking at their own
// wallet (by user id or by the brand/agency/mediator code they hold).
func canViewWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok {
			_ = c.Error(errutil.Unauthorized("authentication required", nil))
			c.Abort()
			return
		}
		if p.HasRole("ops", "admin") {
			c.Next()
			return
		}

		owner := c.Param("ownerId")
		for _, id := range []string{p.UserID, p.BrandCode, p.AgencyCode, p.MediatorCode} {
			if id != "" && strings.EqualFold(id, owner) {
				c.Next()
				return
			}
		}
		_ = c.Error(errutil.Forbidden("not allowed to view this wallet", nil))
		c.Abort()
	}
}
