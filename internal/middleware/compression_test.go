package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompressedRouter(cm *Compressor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cm.Handler())

	results := make([]gin.H, 0, 200)
	for i := 0; i < 200; i++ {
		results = append(results, gin.H{"participant_a": i, "participant_b": i + 1, "compatibility_score": 70})
	}
	r.GET("/large", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"results": results}) })
	r.GET("/small", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/binary", func(c *gin.Context) {
		c.Data(http.StatusOK, "image/png", []byte(strings.Repeat("x", 4096)))
	})
	r.DELETE("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestCompressor_Handler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		acceptEncoding string
		wantGzip       bool
		wantStatus     int
	}{
		{"large json gzipped", http.MethodGet, "/large", "gzip, deflate, br", true, http.StatusOK},
		{"wildcard encoding", http.MethodGet, "/large", "*", true, http.StatusOK},
		{"gzip refused by q=0", http.MethodGet, "/large", "gzip;q=0, br", false, http.StatusOK},
		{"no accept-encoding", http.MethodGet, "/large", "", false, http.StatusOK},
		{"small body stays plain", http.MethodGet, "/small", "gzip", false, http.StatusOK},
		{"binary content type stays plain", http.MethodGet, "/binary", "gzip", false, http.StatusOK},
		{"empty body", http.MethodDelete, "/empty", "gzip", false, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewCompressor(DefaultCompressionConfig())
			r := newCompressedRouter(cm)

			plain := httptest.NewRecorder()
			r.ServeHTTP(plain, httptest.NewRequest(tt.method, tt.path, nil))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if !tt.wantGzip {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				assert.Equal(t, plain.Body.String(), w.Body.String())
				return
			}

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
			assert.Less(t, w.Body.Len(), plain.Body.Len())

			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, plain.Body.String(), string(body))
		})
	}
}

func TestCompressor_Stats(t *testing.T) {
	cm := NewCompressor(DefaultCompressionConfig())
	r := newCompressedRouter(cm)

	for _, path := range []string{"/large", "/large", "/small"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	stats := cm.Stats()
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(2), stats["compressed_requests"])
	assert.Greater(t, stats["saved_bytes"], int64(0))
	assert.Greater(t, stats["compression_savings"], 0.0)
}

func TestNewCompressor_InvalidLevel(t *testing.T) {
	cm := NewCompressor(CompressionConfig{MinSize: -5, CompressionLevel: 42, ContentTypes: []string{"application/json"}})
	assert.Equal(t, gzip.DefaultCompression, cm.config.CompressionLevel)
	assert.Equal(t, 0, cm.config.MinSize)
}
