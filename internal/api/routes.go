package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupHub/internal/handler"
	"github.com/Gopher0727/GroupHub/internal/service"
)

// NewRouter builds the gin engine with global middleware, the health check
// and every group API route.
func NewRouter(mm *MiddlewareManager, svc *service.Service) *gin.Engine {
	r := gin.New()
	r.Use(mm.TraceID(), mm.Logger(), mm.Recovery())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterRoutes(r, mm,
		handler.NewGroupHandler(svc),
		handler.NewMemberHandler(svc),
		handler.NewInviteHandler(svc),
	)
	return r
}
