package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/handler"
	"autodrive/internal/middleware"
	"autodrive/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler    *handler.TripHandler
	VehicleHandler *handler.VehicleHandler
	AccountHandler *handler.AccountHandler
	Cache          redis.CacheStoreInterface
	Auth           config.AuthConfig
	Logger         logrus.FieldLogger
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.AuthMiddleware(deps.Auth))

	if deps.NewRelicApp != nil {
		router.Use(middleware.NewRelicAttributes())
	}

	// Idempotency runs after auth so cached responses are scoped per actor.
	router.Use(middleware.IdempotencyMiddleware(deps.Cache, deps.Logger))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Account routes.
		accounts := v1.Group("/accounts")
		{
			accounts.POST("", deps.AccountHandler.Register)
			accounts.GET("/:id", deps.AccountHandler.GetAccount)
		}

		// Vehicle routes.
		vehicles := v1.Group("/vehicles")
		{
			vehicles.POST("", deps.VehicleHandler.Register)
			vehicles.GET("", deps.VehicleHandler.GetAll)
			vehicles.GET("/available", deps.VehicleHandler.GetAvailable)
			vehicles.GET("/:id", deps.VehicleHandler.GetVehicle)
			vehicles.POST("/:id/location", deps.VehicleHandler.UpdateLocation)
			vehicles.POST("/:id/status", deps.VehicleHandler.SetStatus)
		}

		// Trip routes.
		trips := v1.Group("/trips")
		{
			trips.POST("/estimate", deps.TripHandler.Estimate)
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("", deps.TripHandler.GetAll)
			trips.GET("/active", deps.TripHandler.GetActive)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.POST("/:id/match", deps.TripHandler.MatchTrip)
			trips.POST("/:id/payment", deps.TripHandler.PreparePayment)
			trips.POST("/:id/accept", deps.TripHandler.AcceptTrip)
			trips.POST("/:id/pickup", deps.TripHandler.PickupPassenger)
			trips.POST("/:id/complete", deps.TripHandler.CompleteTrip)
			trips.POST("/:id/cancel", deps.TripHandler.CancelTrip)
		}
	}

	return router
}
