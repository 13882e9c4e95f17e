package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"worksafe/internal/platform/config"
	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
)

// requestMeta stamps every request with a correlation ID and the instant the
// request arrived. All writes inside the request observe the same clock
// reading so created_at and calculated_at values line up.
func requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic serving request",
						"panic", rec, "path", r.URL.Path,
						"request_id", requestcontext.RequestID(r.Context()))
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(started).Milliseconds(),
				"request_id", requestcontext.RequestID(r.Context()))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type authClaims struct {
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// authenticate validates the bearer token, resolves the tenant per the
// configured strategy and installs the acting identity so services and the
// audit layer never touch HTTP concerns.
func authenticate(signingKey string, resolution config.TenantResolution) func(http.Handler) http.Handler {
	key := []byte(signingKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := &authClaims{}
			_, err := jwt.ParseWithClaims(raw, claims,
				func(t *jwt.Token) (any, error) { return key, nil },
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			tenantID, err := resolveTenant(r, claims, resolution)
			if err != nil {
				http.Error(w, "tenant could not be resolved", http.StatusUnauthorized)
				return
			}

			userID, err := id.ParseUserID(claims.Subject)
			if err != nil {
				http.Error(w, "invalid token subject", http.StatusUnauthorized)
				return
			}

			actor := requestcontext.Actor{
				UserID:    userID,
				Name:      claims.Name,
				Source:    "user",
				ClientIP:  clientIP(r),
				UserAgent: readableUserAgent(r.UserAgent()),
			}

			ctx := requestcontext.WithTenantID(r.Context(), tenantID)
			ctx = requestcontext.WithActor(ctx, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

func resolveTenant(r *http.Request, claims *authClaims, resolution config.TenantResolution) (id.TenantID, error) {
	switch resolution {
	case config.TenantFromHeader:
		return id.ParseTenantID(r.Header.Get("X-Tenant-ID"))
	case config.TenantFromSubdomain:
		host, _, err := net.SplitHostPort(r.Host)
		if err != nil {
			host = r.Host
		}
		sub, _, _ := strings.Cut(host, ".")
		return id.ParseTenantID(sub)
	default:
		return id.ParseTenantID(claims.TenantID)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// readableUserAgent condenses the raw UA header into the short "browser on
// platform" form stored on audit events.
func readableUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	out := name
	if version != "" {
		out += " " + version
	}
	if platform := ua.OS(); platform != "" {
		out += " on " + platform
	}
	return out
}
