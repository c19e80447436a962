package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	platformobservability "github.com/infracdo/backoffice/platform/observability"
	"github.com/infracdo/backoffice/services/transaction/internal/authctx"
	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

const (
	tokenHeader     = "token"
	sessionIDHeader = "x-session-id"
)

// AuthConfig параметры проверки JWT
type AuthConfig struct {
	Secret    string
	Algorithm string
}

// Auth HTTP middleware: определяет requester по JWT (заголовок token или Bearer),
// иначе по x-session-id через хранилище сессий. sessions может быть nil.
// Без учётных данных 401 "Token missing", с неверными 401 "Invalid Token".
func Auth(cfg AuthConfig, sessions repository.SessionRepository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := platformobservability.FromContext(r.Context(), logger)

			if raw := bearerToken(r); raw != "" {
				requester, err := parseToken(cfg, raw)
				if err != nil {
					log.Debug("auth: invalid token", zap.Error(err))
					unauthorized(w, "Invalid Token")
					return
				}
				next.ServeHTTP(w, r.WithContext(authctx.WithRequester(r.Context(), requester)))
				return
			}

			sid := r.Header.Get(sessionIDHeader)
			if sid == "" || sessions == nil {
				unauthorized(w, "Token missing")
				return
			}

			session, err := sessions.Get(r.Context(), sid)
			if err != nil {
				if !errors.Is(err, repository.ErrSessionNotFound) {
					log.Warn("auth: session lookup failed", zap.Error(err))
				}
				unauthorized(w, "Invalid Token")
				return
			}

			requester := authctx.Requester{UserID: session.UserID, UserType: session.UserType}
			next.ServeHTTP(w, r.WithContext(authctx.WithRequester(r.Context(), requester)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if t := r.Header.Get(tokenHeader); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func parseToken(cfg AuthConfig, raw string) (authctx.Requester, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{cfg.Algorithm}))
	if err != nil {
		return authctx.Requester{}, err
	}

	userID := claimString(claims, "user_id")
	if userID == "" {
		return authctx.Requester{}, errors.New("token has no user_id claim")
	}

	return authctx.Requester{
		UserID:   userID,
		UserType: claimString(claims, "user_type"),
	}, nil
}

// claimString user_id бывает и строкой, и числом
func claimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprint(val)
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
