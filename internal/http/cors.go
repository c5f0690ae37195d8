package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsAllowedHeaders are the request headers a browser client may send. The break-glass
// header is absent: emergency overrides are not accepted from browsers.
var corsAllowedHeaders = []string{
	"Content-Type",
	HeaderVaultToken,
	HeaderSessionID,
	HeaderDeviceID,
	HeaderCountry,
	HeaderAuthLevel,
	HeaderAuthVerifiedAt,
}

// createCORSMiddleware returns nil when CORS is disabled or no usable origin is configured.
// The vault API is called server to server, so CORS is off by default.
func createCORSMiddleware(enabled bool, allowOriginsStr string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins, rejected := parseOrigins(allowOriginsStr)
	for _, origin := range rejected {
		logger.Warn("ignoring CORS origin", slog.String("origin", origin))
	}
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no valid origins configured - CORS will not be applied")
		return nil
	}

	logger.Info("CORS enabled", slog.Int("origin_count", len(origins)), slog.Any("origins", origins))

	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	})
}

// parseOrigins splits a comma-separated origin list. A token-bearing API never allows
// every origin, so "*" is rejected along with anything that is not an http(s) origin.
func parseOrigins(originsStr string) (origins, rejected []string) {
	for _, part := range strings.Split(originsStr, ",") {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		if origin == "" {
			continue
		}
		if validOrigin(origin) {
			origins = append(origins, origin)
		} else {
			rejected = append(rejected, origin)
		}
	}
	return origins, rejected
}

func validOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || strings.Contains(u.Host, "*") {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Path == "" && u.RawQuery == "" && u.User == nil
}
