package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestJSONLoggerCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("bookreview", "info", "json", &buf)

	logger.Info("hello", slog.String("isbn", "0380795272"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bookreview", line["service"])
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "0380795272", line["isbn"])
}

func TestJSONLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("bookreview", "warn", "json", &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())
}

func TestMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewWithWriter("bookreview", "info", "json", &buf)

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/book/:isbn", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/book/123", nil)
	req.Header.Set("X-User-Id", "7")
	router.ServeHTTP(w, req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/book/:isbn", line["path"])
	assert.Equal(t, float64(404), line["status"])
	assert.Equal(t, "7", line["user_id"])
}
