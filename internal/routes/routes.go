package routes

import (
	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Dependencies are the handlers and guards the API routes need
type Dependencies struct {
	Auth          *handlers.AuthHandler
	MFA           *handlers.MFAHandler
	Sessions      *handlers.SessionHandler
	TokenManager  *auth.TokenManager
	AuthRateLimit middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	// Public routes, limited per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(deps.AuthRateLimit))

		r.Post("/auth/register", deps.Auth.Register)
		r.Post("/auth/verify-email", deps.Auth.VerifyEmail)
		r.Post("/auth/login", deps.Auth.Login)
		r.Post("/auth/forgot-password", deps.Auth.ForgotPassword)
		r.Post("/auth/reset-password", deps.Auth.ResetPassword)
		r.Post("/mfa/verify-login", deps.MFA.VerifyLogin)

		r.With(auth.RequireRefreshToken(deps.TokenManager)).Post("/auth/refresh", deps.Auth.Refresh)
	})

	// Access token required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAccessToken(deps.TokenManager))

		r.Post("/auth/logout", deps.Auth.Logout)

		r.Get("/mfa/setup", deps.MFA.Setup)
		r.Post("/mfa/verify", deps.MFA.Verify)
		r.Put("/mfa/revoke", deps.MFA.Revoke)

		r.Get("/session", deps.Sessions.Current)
		r.Get("/session/all", deps.Sessions.ListAll)
		r.Delete("/session/{id}", deps.Sessions.Delete)
	})
}
