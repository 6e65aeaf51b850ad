package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kinohall/vodpipe/internal/middleware"
)

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.MaxMultipartMemory = 32 << 20

	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ManagerAuth())
	{
		v1.POST("/movies/:movieId/trailer", api.uploadTrailer)
		v1.POST("/movies/:movieId/film", api.uploadFilm)
		v1.POST("/movies/:movieId/seasons/:season/episodes/:episode", api.uploadEpisode)

		v1.POST("/movies/:movieId/assets/:assetId/progress", api.reportProgress)
		v1.GET("/movies/:movieId/assets/:assetId", api.getAsset)
		v1.DELETE("/movies/:movieId/assets/:assetId", api.deleteAsset)
	}

	return router
}

func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.db.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
