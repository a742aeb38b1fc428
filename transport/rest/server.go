package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter - ws is mounted at /ws when not nil.
func NewRouter(logger *zap.Logger, ping PingHandler, games GameHandlers, ws http.Handler) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/ping", ping.PingHandler)

	router.Route("/games", func(r chi.Router) {
		r.Post("/", games.CreateGame)

		r.Route("/{gameID}", func(r chi.Router) {
			r.Get("/", games.GetGame)
			r.Delete("/", games.DeleteGame)
			r.Post("/moves", games.SubmitMove)
			r.Post("/reset", games.ResetGame)
			r.Get("/archive", games.GetArchivedGame)
		})
	})

	if ws != nil {
		router.Get("/ws", ws.ServeHTTP)
	}

	return router
}

// NewServer - write timeout stays off, websocket connections are long lived.
func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	log := logger.With(zap.String("component", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			defer func() {
				log.Info("request served",
					zap.String("requestID", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(started)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
