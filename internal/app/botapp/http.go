package botapp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
	authsvc "github.com/ivankudzin/tgapp/moderator/internal/services/auth"
	httperrors "github.com/ivankudzin/tgapp/moderator/internal/transport/http/errors"
	"github.com/ivankudzin/tgapp/moderator/internal/transport/http/handlers"
)

type Dependencies struct {
	DB         handlers.Pinger
	Metrics    *metrics.Metrics
	JWT        *authsvc.JWTManager
	Strikes    handlers.StrikeService
	Quarantine handlers.QuarantineService
	Tickets    handlers.TicketService
	Guilds     handlers.GuildService
	Evidence   handlers.EvidenceService
	Logger     *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.DB)
	adminHandler := handlers.NewAdminHandler(handlers.AdminDependencies{
		Strikes:    deps.Strikes,
		Quarantine: deps.Quarantine,
		Tickets:    deps.Tickets,
		Guilds:     deps.Guilds,
		Evidence:   deps.Evidence,
		Logger:     deps.Logger,
	})

	r.Get("/healthz", healthHandler.Get)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(deps.JWT, deps.Logger))

		r.Get("/communities/{community_id}/users/{user_id}/strikes", adminHandler.Strikes)
		r.Get("/communities/{community_id}/users/{user_id}/standing", adminHandler.Standing)
		r.Post("/communities/{community_id}/users/{user_id}/quarantine/release", adminHandler.ReleaseQuarantine)
		r.Post("/tickets/{id}/close", adminHandler.CloseTicket)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(authsvc.RoleAdmin))
			r.Post("/communities/{community_id}/users/{user_id}/mute/lift", adminHandler.LiftMute)
			r.Put("/communities/{community_id}/config", adminHandler.UpdateGuildConfig)
			r.Post("/strikes/{id}/pardon", adminHandler.Pardon)
		})
	})
}

func ApplyMiddlewares(r chiRouter, log *zap.Logger) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))
}

func AuthMiddleware(jwt *authsvc.JWTManager, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if jwt == nil {
				httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
					Code:    "AUTH_SERVICE_UNAVAILABLE",
					Message: "auth service is unavailable",
				})
				return
			}

			accessToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "missing bearer token",
				})
				return
			}

			claims, err := jwt.ParseAccessToken(accessToken)
			if err != nil {
				if log != nil {
					log.Debug("auth middleware validation failed", zap.Error(err))
				}
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "invalid access token",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(authsvc.WithIdentity(r.Context(), claims)))
		})
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authsvc.IdentityFromContext(r.Context())
			if !ok || identity.Role != role {
				httperrors.Write(w, http.StatusForbidden, httperrors.APIError{
					Code:    "FORBIDDEN",
					Message: "insufficient role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				)
			}
		})
	}
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
