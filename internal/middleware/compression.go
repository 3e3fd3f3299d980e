package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
		},
	}
}

// Compressor gzips large responses. Match-run previews carry one entry per
// candidate pair and dominate response size.
type Compressor struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressor creates a compressor. An invalid level falls back to the
// gzip default.
func NewCompressor(config CompressionConfig) *Compressor {
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}
	if config.MinSize < 0 {
		config.MinSize = 0
	}
	cm := &Compressor{config: config, stats: &CompressionStats{}}
	cm.pool.New = func() any {
		gz, _ := gzip.NewWriterLevel(io.Discard, cm.config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns the gin middleware.
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !acceptsGzip(c.Request) {
			c.Next()
			return
		}

		original := c.Writer
		gw := &gzipResponseWriter{ResponseWriter: original, cm: cm}
		c.Writer = gw
		c.Header("Vary", "Accept-Encoding")

		defer func() {
			gw.finish()
			c.Writer = original
		}()
		c.Next()
	}
}

// Stats returns compression counters.
func (cm *Compressor) Stats() map[string]any {
	return cm.stats.GetStats()
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		fields := strings.Split(part, ";")
		if enc := strings.TrimSpace(fields[0]); enc != "gzip" && enc != "*" {
			continue
		}
		for _, param := range fields[1:] {
			if q, ok := strings.CutPrefix(strings.TrimSpace(param), "q="); ok {
				if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
					return false
				}
			}
		}
		return true
	}
	return false
}

func (cm *Compressor) compressible(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

type writeMode int

const (
	modeUndecided writeMode = iota
	modePlain
	modeGzip
)

// gzipResponseWriter buffers the first MinSize bytes so small bodies go out
// uncompressed.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm      *Compressor
	mode    writeMode
	buf     []byte
	gz      *gzip.Writer
	counter *countingWriter
	raw     int64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	g.raw += int64(len(data))
	switch g.mode {
	case modeGzip:
		return g.gz.Write(data)
	case modePlain:
		return g.ResponseWriter.Write(data)
	}

	g.buf = append(g.buf, data...)
	if len(g.buf) < g.cm.config.MinSize {
		return len(data), nil
	}
	if err := g.decide(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (g *gzipResponseWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

// decide picks plain or gzip output and drains the buffer.
func (g *gzipResponseWriter) decide() error {
	header := g.Header()
	if header.Get("Content-Encoding") != "" || !g.cm.compressible(header.Get("Content-Type")) {
		g.mode = modePlain
		_, err := g.ResponseWriter.Write(g.buf)
		g.buf = nil
		return err
	}

	g.mode = modeGzip
	header.Set("Content-Encoding", "gzip")
	header.Del("Content-Length")
	g.counter = &countingWriter{w: g.ResponseWriter}
	g.gz = g.cm.pool.Get().(*gzip.Writer)
	g.gz.Reset(g.counter)
	_, err := g.gz.Write(g.buf)
	g.buf = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	if g.mode == modeUndecided && len(g.buf) > 0 {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	g.ResponseWriter.Flush()
}

// finish writes any buffered remainder and returns the gzip writer.
func (g *gzipResponseWriter) finish() {
	if g.mode == modeUndecided {
		if len(g.buf) > 0 {
			_, _ = g.ResponseWriter.Write(g.buf)
		}
		g.cm.stats.RecordRequest(g.raw, g.raw, false)
		return
	}
	if g.gz == nil {
		g.cm.stats.RecordRequest(g.raw, g.raw, false)
		return
	}
	_ = g.gz.Close()
	g.cm.pool.Put(g.gz)
	g.gz = nil
	g.cm.stats.RecordRequest(g.raw, g.counter.n, true)
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	savedBytes         int64
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	atomic.AddInt64(&cs.TotalBytes, originalSize)
	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
		atomic.AddInt64(&cs.CompressedBytes, compressedSize)
		atomic.AddInt64(&cs.savedBytes, originalSize-compressedSize)
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]any {
	total := atomic.LoadInt64(&cs.TotalBytes)
	saved := atomic.LoadInt64(&cs.savedBytes)

	savings := float64(0)
	if total > 0 {
		savings = float64(saved) / float64(total)
	}

	return map[string]any{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"total_bytes":         total,
		"compressed_bytes":    atomic.LoadInt64(&cs.CompressedBytes),
		"saved_bytes":         saved,
		"compression_savings": savings,
	}
}
