package routes

import (
	"strings"

	"github.com/Darshan124-get/kisan--mitra/internal/container"
	"github.com/Darshan124-get/kisan--mitra/internal/handlers"
	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(c *container.Container, allowedOrigins string, production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(allowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(c.Logger))
	r.Use(middleware.RateLimit(c.Logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(200, gin.H{
				"status":  "OK",
				"service": "kisan-mitra-api",
			})
		})
	}

	// Listing reads are public so farmers can browse before signing in.
	serviceReads := v1.Group("/services")
	{
		serviceReads.GET("", handlers.ListServices(c.ServiceService))
		serviceReads.GET("/search", handlers.SearchServices(c.ServiceService))
		serviceReads.GET("/nearby", handlers.NearbyServices(c.ServiceService))
	}

	protected := v1.Group("/")
	protected.Use(middleware.Auth(c.TokenVerifier, c.Logger))

	serviceRoutes := protected.Group("/services")
	{
		serviceRoutes.POST("", middleware.RequireRole(helpers.RoleLaborer), handlers.CreateService(c.ServiceService))
		serviceRoutes.GET("/my-services", middleware.RequireRole(helpers.RoleLaborer), handlers.ListMyServices(c.ServiceService))
		serviceRoutes.POST("/upload-image", middleware.RequireRole(helpers.RoleLaborer), handlers.UploadServiceImage(c.ServiceService))
		serviceRoutes.PUT("/:id", handlers.UpdateService(c.ServiceService))
		serviceRoutes.PUT("/:id/availability", handlers.UpdateServiceAvailability(c.ServiceService))
		serviceRoutes.PUT("/:id/location", handlers.UpdateServiceLocation(c.ServiceService))
		serviceRoutes.DELETE("/:id", handlers.DeleteService(c.ServiceService))
	}
	// Registered after the specific paths so "my-services" is not read as an id.
	serviceReads.GET("/:id", handlers.GetService(c.ServiceService))

	bookingRoutes := protected.Group("/bookings")
	{
		bookingRoutes.POST("", middleware.RequireRole(helpers.RoleFarmer), handlers.CreateBooking(c.BookingService))
		bookingRoutes.GET("/my-bookings", handlers.ListMyBookings(c.BookingService))
		bookingRoutes.GET("/:id", handlers.GetBooking(c.BookingService))
		bookingRoutes.PUT("/:id/status", handlers.UpdateBookingStatus(c.BookingService))
		bookingRoutes.POST("/:id/review", middleware.RequireRole(helpers.RoleFarmer), handlers.AttachReview(c.BookingService))
	}

	return r
}
