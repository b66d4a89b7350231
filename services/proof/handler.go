package proof

import (
	"net/http"
	"strconv"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/httpapi"
	"cashback-controlplane/pkg/middleware"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/identity"
	"cashback-controlplane/services/order"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(api httpapi.APIGroup, s *Service) {
	api.POST("/orders/:id/proof", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			_ = c.Error(errutil.BadRequest("invalid order id", err))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxFileSize+(1<<20))
		fh, err := c.FormFile("file")
		if err != nil {
			_ = c.Error(errutil.BadRequest("file is required", err))
			return
		}

		p, _ := middleware.PrincipalFrom(c)
		o, err := s.orders.Get(c.Request.Context(), id)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if o.ShopperID != p.UserID && !p.HasRole(identity.RoleOps, identity.RoleAdmin) {
			_ = c.Error(order.ErrNotFound(id))
			return
		}

		file, err := fh.Open()
		if err != nil {
			_ = c.Error(errutil.BadRequest("unreadable file", err))
			return
		}
		defer file.Close()

		updated, err := s.SubmitProof(c.Request.Context(), id, audit.ActorFrom(p), File{
			Reader:      file,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		})
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": updated})
	})
}
