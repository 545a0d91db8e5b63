package server

import (
	"net/http"
	"time"

	"github.com/danmuck/eventport/internal/eventport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *Admin) RegisterRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.Name,
			"version": Version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/realms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"realms": a.Realms()})
	})

	a.router.GET("/realm", func(c *gin.Context) {
		name := c.Query("name")
		for _, info := range a.Realms() {
			if info.Name == name {
				c.JSON(http.StatusOK, info)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "realm not found"})
	})

	a.router.GET("/registry", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": eventport.RegistryVersion,
			"kinds":   eventport.DefaultRegistry().List(),
		})
	})
}
