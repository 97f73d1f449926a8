package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/plate-scan/internal/registry"
)

// VehicleService is the registry use case served over HTTP.
type VehicleService interface {
	List(ctx context.Context) ([]registry.Vehicle, error)
	Register(ctx context.Context, req registry.CreateVehicleRequest) (*registry.CreateVehicleResponse, error)
	FindByPlate(ctx context.Context, plate string) (*registry.Vehicle, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*registry.Stats, error)
}

// RegisterRegistryRoutes wires the vehicle registry API. Writes go through
// authMiddleware.
func RegisterRegistryRoutes(router *gin.Engine, svc VehicleService, authMiddleware gin.HandlerFunc) {
	router.GET("/vehicles", func(c *gin.Context) {
		vehicles, err := svc.List(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, vehicles)
	})

	router.GET("/vehicles/:plate", func(c *gin.Context) {
		vehicle, err := svc.FindByPlate(c.Request.Context(), c.Param("plate"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, vehicle)
	})

	router.GET("/stats", func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	protected := router.Group("/vehicles")
	protected.Use(authMiddleware)

	protected.POST("", func(c *gin.Context) {
		var req registry.CreateVehicleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON vehicle"})
			return
		}

		resp, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	})

	protected.DELETE("/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
			return
		}

		if err := svc.Delete(c.Request.Context(), id); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "vehicle deleted"})
	})
}
