package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var gzipWriters = sync.Pool{
	New: func() any { return gzip.NewWriter(io.Discard) },
}

// gzipResponseWriter decides on compression when the status is written, so
// error bodies and listings share one path.
type gzipResponseWriter struct {
	http.ResponseWriter
	writer      *gzip.Writer
	wroteHeader bool
}

func (g *gzipResponseWriter) WriteHeader(code int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true
	if shouldCompress(g.Header(), code) {
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Del("Content-Length")
		g.writer = gzipWriters.Get().(*gzip.Writer)
		g.writer.Reset(g.ResponseWriter)
	}
	g.ResponseWriter.WriteHeader(code)
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	if g.writer != nil {
		return g.writer.Write(b)
	}
	return g.ResponseWriter.Write(b)
}

func (g *gzipResponseWriter) Flush() {
	if g.writer != nil {
		_ = g.writer.Flush()
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (g *gzipResponseWriter) Close() error {
	if g.writer == nil {
		return nil
	}
	err := g.writer.Close()
	gzipWriters.Put(g.writer)
	g.writer = nil
	return err
}

func withGzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Add("Vary", "Accept-Encoding")
		gzw := &gzipResponseWriter{ResponseWriter: w}
		defer func() { _ = gzw.Close() }()
		next.ServeHTTP(gzw, r)
	})
}

func shouldCompress(h http.Header, status int) bool {
	if status == http.StatusNoContent || status == http.StatusNotModified {
		return false
	}
	if strings.Contains(strings.ToLower(h.Get("Content-Encoding")), "gzip") {
		return false
	}
	contentType := strings.ToLower(h.Get("Content-Type"))
	return contentType == "" || strings.HasPrefix(contentType, "application/json")
}
