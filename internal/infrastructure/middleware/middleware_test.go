package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/services"
	"meetrelay/pkg/errors"
	"meetrelay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAuth() services.AuthService {
	return services.NewAuthService("test-secret", "meetrelay", time.Hour, 24*time.Hour)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()
	access, err := auth.GenerateToken(2, "Bob")
	require.NoError(t, err)
	refresh, err := auth.GenerateRefreshToken(2)
	require.NoError(t, err)

	router := gin.New()
	router.Use(AuthMiddleware(auth))
	router.GET("/me", func(c *gin.Context) {
		id, ok := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok, "name": GetUserName(c)})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"access token", "Bearer " + access, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			if tt.status == http.StatusOK {
				assert.EqualValues(t, 2, body["id"])
				assert.Equal(t, true, body["ok"])
				assert.Equal(t, "Bob", body["name"])
			} else {
				assert.Equal(t, string(errors.ErrCodeUnauthorized), body["error"])
			}
		})
	}
}

func TestServiceAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()
	service, err := auth.GenerateServiceToken("records", time.Minute)
	require.NoError(t, err)
	access, err := auth.GenerateToken(3, "Eve")
	require.NoError(t, err)

	router := gin.New()
	router.Use(ServiceAuthMiddleware(auth))
	router.POST("/notify", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": GetService(c)})
	})

	tests := []struct {
		name   string
		header string
		status int
		code   errors.ErrorCode
	}{
		{"missing header", "", http.StatusUnauthorized, errors.ErrCodeUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, errors.ErrCodeUnauthorized},
		{"user token", "Bearer " + access, http.StatusForbidden, errors.ErrCodeForbidden},
		{"service token", "Bearer " + service, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/notify", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			if tt.status == http.StatusOK {
				assert.Equal(t, "records", body["service"])
			} else {
				assert.Equal(t, string(tt.code), body["error"])
			}
		})
	}
}

func TestOptionalAuthMiddleware_AnonymousPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(OptionalAuthMiddleware(newAuth()), RequireUser())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/conflict", func(c *gin.Context) {
		c.Error(errors.NewDuplicateSessionError(domain.ErrDuplicateSession).WithContext("peer_id", "p-1"))
	})
	router.GET("/delivery", func(c *gin.Context) {
		c.Error(errors.NewDeliveryError(stderrors.New("redis down"), "meeting.5"))
	})
	router.GET("/plain", func(c *gin.Context) {
		c.Error(stderrors.New("boom"))
	})

	tests := []struct {
		path    string
		status  int
		code    errors.ErrorCode
		details bool
	}{
		{"/conflict", http.StatusConflict, errors.ErrCodeConflict, true},
		{"/delivery", http.StatusBadGateway, errors.ErrCodeDeliveryFailed, true},
		{"/plain", http.StatusInternalServerError, errors.ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, string(tt.code), body["error"])
			_, hasDetails := body["details"]
			assert.Equal(t, tt.details, hasDetails)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("unexpected") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(errors.ErrCodeInternal), decodeBody(t, w)["error"])
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestIDMiddleware(logger.NewContextLogger(zaptest.NewLogger(t))))
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestIDFromContext(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.Regexp(t, `^req_[0-9A-Za-z]{16}$`, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set(RequestIDHeader, "upstream-42")
		router.ServeHTTP(w, req)

		assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "upstream-42", w.Body.String())
	})
}
