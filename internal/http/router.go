// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"haul/internal/http/handlers"
	"haul/internal/http/middleware"
)

func (s *Server) register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	bookingHandler := handlers.NewBookingHandler(s.deps.Bookings, s.deps.Dispatch)
	trackHandler := handlers.NewTrackHandler(s.deps.Bookings, s.deps.Hub, s.deps.Logger)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings", bookingHandler.List)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/claim", bookingHandler.Claim)
	api.POST("/bookings/:id/status", bookingHandler.Advance)
	api.GET("/bookings/:id/track", trackHandler.Track)

	driverHandler := handlers.NewDriverHandler(s.deps.Drivers, s.deps.Dispatch)
	api.GET("/jobs", driverHandler.Jobs)
	api.POST("/drivers", driverHandler.Register)
	api.GET("/drivers/nearby", driverHandler.Nearby)
	api.GET("/drivers/:id", driverHandler.Get)

	locationHandler := handlers.NewLocationHandler(s.deps.Location)
	api.PUT("/drivers/:id/location", locationHandler.Update)
	api.GET("/drivers/:id/location", locationHandler.Get)
}
