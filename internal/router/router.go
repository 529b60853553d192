package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-bot/api"
	"github.com/psds-microservice/support-bot/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathSwagger = "/swagger"
	PathAPIV1   = "/api/v1"
)

func New(tickets *handler.TicketHandler, operators *handler.OperatorHandler, ready gin.HandlerFunc) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(PathHealth, handler.Health)
	r.GET(PathReady, ready)
	r.GET(PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, PathSwagger+"/") })
	r.GET(PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = PathSwagger + "/index.html"
			c.Request.RequestURI = PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group(PathAPIV1)
	{
		v1.GET("/tickets", tickets.List)
		v1.GET("/tickets/:no", tickets.Get)
		v1.GET("/tickets/:no/messages", tickets.Messages)
		v1.GET("/operators", operators.List)
	}

	return r
}
