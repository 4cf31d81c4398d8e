package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/trace"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Name string `json:"name" form:"name" binding:"required"`
}

type echoResponse struct {
	Greet   string `json:"greet"`
	TraceID string `json:"traceId"`
}

func echo(ctx context.Context, req *echoRequest) (*echoResponse, error) {
	return &echoResponse{Greet: "Hello, " + req.Name, TraceID: trace.GetTraceID(ctx)}, nil
}

func echoBusinessError(ctx context.Context, req *echoRequest) (*echoResponse, error) {
	return nil, errs.WithCode(errs.New("registry unreachable"), errs.ErrorRegistry)
}

func echoPlainError(ctx context.Context, req *echoRequest) (*echoResponse, error) {
	return nil, errors.New("boom")
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/echo", GenericHandler(echo, nil))
	r.GET("/echo", GenericHandler(echo, nil))
	r.POST("/business", GenericHandler(echoBusinessError, nil))
	r.POST("/plain", GenericHandler(echoPlainError, nil))
	return r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenericHandler_Success(t *testing.T) {
	w := postJSON(newEngine(), "/echo", echoRequest{Name: "Naming"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp StandardResponse[*echoResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int32(0), resp.Code)
	assert.Equal(t, "ok", resp.Message)
	assert.Equal(t, "Hello, Naming", resp.Data.Greet)
	assert.NotEmpty(t, resp.Data.TraceID)
	assert.Equal(t, resp.Data.TraceID, w.Header().Get(trace.MetadataKey))
}

func TestGenericHandler_QueryAndTraceHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/echo?name=query", nil)
	req.Header.Set(trace.MetadataKey, "trace-abc")
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp StandardResponse[*echoResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello, query", resp.Data.Greet)
	assert.Equal(t, "trace-abc", resp.Data.TraceID)
}

func TestGenericHandler_BadRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(`invalid json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp StandardResponse[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int32(400), resp.Code)

	w = postJSON(newEngine(), "/echo", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenericHandler_Errors(t *testing.T) {
	w := postJSON(newEngine(), "/business", echoRequest{Name: "x"})
	assert.Equal(t, http.StatusOK, w.Code)
	var resp StandardResponse[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int32(errs.ErrorRegistry), resp.Code)
	assert.Contains(t, resp.Message, "registry unreachable")

	w = postJSON(newEngine(), "/plain", echoRequest{Name: "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGenericHandler_InvalidSignature(t *testing.T) {
	assert.Panics(t, func() { GenericHandler(func(string) {}, nil) })
}
