// api-gateway/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"youtube-downloader-api/shared"
)

func main() {
	cfg := shared.LoadConfig()

	if err := os.MkdirAll(cfg.DownloadsDir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create downloads directory %s: %v", cfg.DownloadsDir, err)
	}

	redisClient := shared.NewRedisClient(cfg)
	if redisClient != nil {
		if err := shared.PingRedis(redisClient); err != nil {
			log.Printf("WARN: Redis at %s unreachable (%v), falling back to in-memory stores", cfg.RedisAddr, err)
			redisClient = nil
		}
	}

	var store shared.SessionStore
	if redisClient != nil {
		store = shared.NewRedisSessionStore(redisClient, cfg.SessionTTL)
		log.Printf("INFO: Using Redis session store at %s", cfg.RedisAddr)
	} else {
		store = shared.NewInMemorySessionStore(cfg.SessionTTL)
		log.Println("INFO: Using in-memory session store")
	}

	limiter := shared.NewRateLimiter(cfg.RateLimitRPM, redisClient)
	srv := newServer(cfg, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/info", srv.handleInfo)
	mux.HandleFunc("/api/download", srv.handleDownload)
	mux.HandleFunc("/api/download-progress", srv.handleDownloadProgress)
	mux.HandleFunc("/api/download-file/", srv.handleDownloadFile)
	mux.HandleFunc("/api/status", srv.handleStatus)

	handler := corsMiddleware(cfg, rateLimitMiddleware(limiter, mux))

	log.Printf("INFO: Downloads directory: %s", cfg.DownloadsDir)
	log.Printf("INFO: yt-dlp: %s, ffmpeg: %s", cfg.YtDlpPath, cfg.FFmpegPath)
	log.Printf("INFO: API server running on http://localhost:%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}

// corsMiddleware answers preflights and sets the allowed origin from config
func corsMiddleware(cfg *shared.Config, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware enforces the per-IP request budget on every API route
func rateLimitMiddleware(limiter *shared.RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := shared.GetClientIP(r)
		ok, remaining := limiter.Allow(ip)
		if !ok {
			log.Printf("WARN: Rate limit exceeded for %s", ip)
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
			return
		}
		if remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		next.ServeHTTP(w, r)
	})
}
