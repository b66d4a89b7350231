package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"cashback-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const principalKey = "principal"

// Principal is the caller identity as stored server side. Tokens only carry
// the subject; roles and codes are always loaded fresh.
type Principal struct {
	UserID       string
	Roles        []string
	MediatorCode string
	AgencyCode   string
	BrandCode    string
	ParentCode   string
}

func (p *Principal) HasRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (*Principal, error)
}

type AuthConfig struct {
	Secret string
	Issuer string
}

// Auth verifies an HS256 bearer token. EventSource clients cannot set headers,
// so the token is also accepted from the access_token query parameter.
func Auth(cfg AuthConfig, resolver PrincipalResolver) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abort(c, errutil.Unauthorized("missing bearer token", nil))
			return
		}

		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}); err != nil {
			abort(c, errutil.Unauthorized("invalid token", err))
			return
		}
		if claims.Subject == "" {
			abort(c, errutil.Unauthorized("token has no subject", nil))
			return
		}

		principal, err := resolver.ResolvePrincipal(c.Request.Context(), claims.Subject)
		if err != nil {
			var be errutil.BaseError
			if errors.As(err, &be) && be.Code == errutil.StatusNotFound {
				abort(c, errutil.Unauthorized("unknown user", nil))
				return
			}
			zap.L().Error("failed to resolve principal", zap.String("user_id", claims.Subject), zap.Error(err))
			abort(c, errutil.Internal("failed to resolve principal", nil))
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRoles rejects callers that hold none of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || !p.HasRole(roles...) {
			abort(c, errutil.Forbidden("insufficient role", nil))
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}

// SignToken issues an HS256 token for subject. Used by ops tooling and tests.
func SignToken(cfg AuthConfig, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("access_token")
}

func abort(c *gin.Context, err error) {
	var be errutil.BaseError
	errors.As(err, &be)
	c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
}
