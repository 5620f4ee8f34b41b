package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	Location       *time.Location
}

// Register mounts the API on e.
func Register(e *echo.Echo, apptService AppointmentService, userService UserService, tokens TokenParser, opts Options) {
	apptRoutes := NewAppointmentDefault(apptService, opts.Location)
	userRoutes := NewUserDefault(userService)

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
	}))
	if opts.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeout(opts.RequestTimeout))
	}

	authed := RequireAuth(tokens)
	limited := RateLimit(opts.RateLimitRPS, opts.RateLimitBurst)

	// Appointments
	e.POST("/api/appointments", apptRoutes.CreateAppointment, limited, OptionalAuth(tokens))
	e.GET("/api/appointments", apptRoutes.GetAppointments, authed)
	e.GET("/api/appointments/filter", apptRoutes.FilterAppointments, authed)
	e.GET("/api/appointments/patient", apptRoutes.GetPatientAppointments, authed)
	e.GET("/api/appointments/mine", apptRoutes.GetMyAppointments, authed)
	e.GET("/api/appointments/:id", apptRoutes.GetAppointment, authed)
	e.PUT("/api/appointments/:id/status", apptRoutes.UpdateStatus, authed)
	e.PUT("/api/appointments/:id/time", apptRoutes.Reschedule, authed)

	// Pseudo-entity "Calendar" to check the availability of a new appointment
	e.GET("/api/calendar", apptRoutes.GetCalendar)
	e.GET("/api/calendar/availability", apptRoutes.GetAvailability)

	// Auth
	e.POST("/api/auth/signup", userRoutes.CreateUser, limited)
	e.POST("/api/auth/verify", userRoutes.VerifySignup, limited)
	e.POST("/api/auth/login", userRoutes.CreateLogin, limited)
	e.PUT("/api/auth/me", userRoutes.UpdateProfile, authed)
	e.PUT("/api/auth/password", userRoutes.ChangePassword, authed)

	// Users
	e.GET("/api/users", userRoutes.GetUsers, authed)
	e.GET("/api/users/:id", userRoutes.GetUser, authed)
	e.PUT("/api/users/:id/role", userRoutes.ChangeRole, authed)
}
