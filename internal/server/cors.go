package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/k8ika0s/envelope-queue/internal/config"
)

var (
	corsMethods = []string{"GET", "POST", "OPTIONS"}
	corsHeaders = []string{"Content-Type", "X-Api-Token"}
)

func withCORS(cfg config.Config, next http.Handler) http.Handler {
	if len(cfg.CORSOrigins) == 0 {
		return next
	}
	allowed := cfg.CORSOrigins
	allowAny := slices.Contains(allowed, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAny || slices.Contains(allowed, origin)) {
			allowOrigin := origin
			if allowAny {
				allowOrigin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
