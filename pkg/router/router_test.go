package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/code-sigs/go-naming/internal/handler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRequest struct {
	Name string `json:"name" form:"name"`
}

type pingResponse struct {
	Name     string `json:"name"`
	ClientIP string `json:"clientIp"`
	Platform string `json:"platform"`
}

func ping(ctx context.Context, req *pingRequest) (*pingResponse, error) {
	resp := &pingResponse{Name: req.Name}
	resp.ClientIP, _ = ctx.Value("clientip").(string)
	resp.Platform, _ = ctx.Value("platform-id").(string)
	return resp, nil
}

func TestRouter_RoutesAndInjector(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New().WithHeader("Platform-ID")
	r.GET("/ping", ping)
	g := r.Group("/v1")
	g.POST("/ping", ping)

	engine := r.Engine(func(e *gin.Engine) {
		e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	}, true)

	req := httptest.NewRequest(http.MethodGet, "/ping?name=a", nil)
	req.Header.Set("Platform-ID", "ios")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp handler.StandardResponse[*pingResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp.Data.Name)
	assert.Equal(t, "ios", resp.Data.Platform)
	assert.NotEmpty(t, resp.Data.ClientIP)

	body, _ := json.Marshal(pingRequest{Name: "b"})
	req = httptest.NewRequest(http.MethodPost, "/v1/ping", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "b", resp.Data.Name)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", w.Body.String())

	// 方法不匹配
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ping", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RunStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New().Run(ctx, "127.0.0.1:0", nil, true) }()
	cancel()
	assert.NoError(t, <-done)
}
