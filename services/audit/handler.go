package audit

import (
	"net/http"

	"cashback-controlplane/pkg/db/pagination"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/httpapi"
	"cashback-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(api httpapi.APIGroup, s *Service) {
	g := api.Group("/audit", middleware.RequireRoles("ops", "admin"))
	g.GET("/:entityType/:entityId", func(c *gin.Context) {
		var p pagination.Pagination
		if err := c.ShouldBindQuery(&p); err != nil {
			_ = c.Error(errutil.BadRequest("invalid pagination", err))
			return
		}

		rows, info, err := s.List(c.Request.Context(), c.Param("entityType"), c.Param("entityId"), p)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
	})
}
