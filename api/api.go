package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tupahq/tupasync"
	"github.com/tupahq/tupasync/api/middleware"
	"github.com/tupahq/tupasync/config"
)

type Api struct {
	tupa   *tupasync.Tupa
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/clients", a.CreateClient)
	router.GET("/clients", a.GetAllClients)
	router.GET("/clients/:client_id", a.GetClient)

	router.POST("/clients/:client_id/sync", a.SyncClient)
	router.GET("/clients/:client_id/status", a.GetStatus)
	router.GET("/clients/:client_id/logs", a.GetLogs)
	router.GET("/clients/:client_id/tasks", a.GetTasks)
	router.GET("/clients/:client_id/sales", a.GetSales)

	router.POST("/clients/:client_id/circuit/reset", a.ResetCircuit)
	router.GET("/clients/:client_id/retries", a.GetRetryJobs)
	router.DELETE("/clients/:client_id/retries", a.CancelRetryJobs)

	router.GET("/tasks/:task_id", a.GetTask)
	router.GET("/vendors", a.GetVendors)
	return a.router
}

func NewAPI(t *tupasync.Tupa) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{tupa: t, router: r}
}
