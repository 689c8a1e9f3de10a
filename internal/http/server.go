// README: API gateway; registers HTTP routes on a gin engine and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/handlers"
	"seatshare/internal/http/middleware"
	"seatshare/internal/logging"
)

type ServerDeps struct {
	Resolver middleware.ActorResolver
	Rides    handlers.RideService
	Bookings interface {
		handlers.BookingService
		handlers.RideBookings
	}
	Reviews handlers.ReviewService
	Users   handlers.UserService
	Feed    handlers.FeedSubscriber
	Log     *slog.Logger
}

type Server struct {
	deps ServerDeps
	log  *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps, log: logging.OrDiscard(deps.Log)}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log), middleware.Auth(s.deps.Resolver, s.log))
	auth := middleware.RequireActor(s.log)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	rides := handlers.NewRideHandler(s.deps.Rides, s.deps.Bookings, s.log)
	r.POST("/rides", auth, rides.Create)
	r.GET("/rides", rides.List)
	r.GET("/rides/:id", rides.Get)
	r.PUT("/rides/:id", auth, rides.Update)
	r.DELETE("/rides/:id", auth, rides.Delete)
	r.GET("/rides/:id/bookings", auth, rides.Bookings)

	bookings := handlers.NewBookingHandler(s.deps.Bookings, s.log)
	r.POST("/bookings", auth, bookings.Create)
	r.GET("/bookings", auth, bookings.ListMine)
	r.GET("/bookings/:id", auth, bookings.Get)
	r.GET("/bookings/:id/events", auth, bookings.Events)
	r.PUT("/bookings/:id", auth, bookings.Update)
	r.DELETE("/bookings/:id", auth, bookings.Cancel)

	reviews := handlers.NewReviewHandler(s.deps.Reviews, s.log)
	r.POST("/reviews", auth, reviews.Create)
	r.GET("/reviews", reviews.List)

	users := handlers.NewUserHandler(s.deps.Users, s.log)
	r.GET("/users/:id", users.Get)
	r.GET("/me", auth, users.Me)

	if s.deps.Feed != nil {
		feed := handlers.NewFeedHandler(s.deps.Feed, s.deps.Rides, s.log)
		r.GET("/ws/rides/:id", feed.Ride)
	}
	return r
}
