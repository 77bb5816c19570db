package apiserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sifter/internal/auth"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
)

// Auth0Middleware validates Auth0 JWT bearer tokens on the digest-trigger
// surface. User authentication is out of scope for the pipeline itself;
// when AUTH0_DOMAIN is unset this is a no-op, so the endpoint still works
// in local/dev setups that don't run an Auth0 tenant.
func Auth0Middleware() gin.HandlerFunc {
	cfg := auth.GetAuth0Config()
	if cfg.Domain == "" {
		return func(c *gin.Context) { c.Next() }
	}

	issuerURL, _ := url.Parse(fmt.Sprintf("https://%s/", cfg.Domain))
	provider := jwks.NewCachingProvider(issuerURL, 24*time.Hour)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Audience},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create Auth0 JWT validator: %v", err))
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		token, err := jwtValidator.ValidateToken(context.Background(), tokenString)
		if err != nil {
			slog.Warn("auth0 token validation failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.(*validator.ValidatedClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.RegisteredClaims.Subject)
		c.Next()
	}
}
