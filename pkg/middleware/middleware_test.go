package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cashback-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type resolverFunc func(ctx context.Context, userID string) (*Principal, error)

func (f resolverFunc) ResolvePrincipal(ctx context.Context, userID string) (*Principal, error) {
	return f(ctx, userID)
}

var testAuth = AuthConfig{Secret: "s3cret", Issuer: "cashback-controlplane"}

func newRouter(resolver PrincipalResolver) *gin.Engine {
	r := gin.New()
	r.Use(Error())
	r.GET("/me", Auth(testAuth, resolver), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": p.UserID, "roles": p.Roles})
	})
	r.GET("/ops", Auth(testAuth, resolver), RequireRoles("ops", "admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errutil.Conflict("order is frozen", nil, errutil.WithReason("ORDER_FROZEN")))
	})
	return r
}

func TestAuth_ResolvesPrincipalFresh(t *testing.T) {
	calls := 0
	r := newRouter(resolverFunc(func(ctx context.Context, userID string) (*Principal, error) {
		calls++
		return &Principal{UserID: userID, Roles: []string{"shopper"}}, nil
	}))

	token, err := SignToken(testAuth, "u-1", time.Minute)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, 2, calls)
}

func TestAuth_QueryToken(t *testing.T) {
	r := newRouter(resolverFunc(func(ctx context.Context, userID string) (*Principal, error) {
		return &Principal{UserID: userID}, nil
	}))
	token, err := SignToken(testAuth, "u-2", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Rejects(t *testing.T) {
	r := newRouter(resolverFunc(func(ctx context.Context, userID string) (*Principal, error) {
		return nil, errutil.NotFound("user not found", nil)
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	wrongKey, err := SignToken(AuthConfig{Secret: "other", Issuer: testAuth.Issuer}, "u-1", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+wrongKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := SignToken(testAuth, "u-1", -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	valid, err := SignToken(testAuth, "ghost", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	roles := []string{"shopper"}
	r := newRouter(resolverFunc(func(ctx context.Context, userID string) (*Principal, error) {
		return &Principal{UserID: userID, Roles: roles}, nil
	}))
	token, err := SignToken(testAuth, "u-1", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	roles = []string{"OPS"}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestError_RendersReason(t *testing.T) {
	r := newRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Error struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ORDER_FROZEN", body.Error.Reason)
	require.Equal(t, "conflict", body.Error.Code)
}
