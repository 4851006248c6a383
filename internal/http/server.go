// README: API gateway; builds the gin engine, middleware chain and CORS wrapper around module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillahandlers "github.com/gorilla/handlers"

	"haul/internal/events"
	"haul/internal/http/middleware"
	"haul/internal/infra"
	"haul/internal/modules/booking"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/driver"
	"haul/internal/modules/location"
)

type ServerDeps struct {
	Bookings *booking.Service
	Dispatch *dispatch.Service
	Drivers  *driver.Service
	Location *location.Service
	Hub      *events.Hub
	// Verifier nil disables auth.
	Verifier    infra.TokenVerifier
	Logger      *slog.Logger
	CORSOrigins []string
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Hub == nil {
		deps.Hub = events.NewHub()
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}
	return &Server{deps: deps}
}

// Routes returns the full handler: gin engine behind the CORS layer.
func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(s.deps.Logger),
		middleware.Logging(s.deps.Logger),
		middleware.Metrics(),
	)
	s.register(engine)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(s.deps.CORSOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return cors(engine)
}
