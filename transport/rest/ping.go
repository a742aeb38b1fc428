package rest

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type storePinger interface {
	Ping(ctx context.Context) error
}

type PingHandler interface {
	PingHandler(w http.ResponseWriter, r *http.Request)
}

type pingHandler struct {
	logger *zap.Logger
	store  storePinger
}

// NewPingHandler - answers pong while the game store is reachable.
func NewPingHandler(logger *zap.Logger, store storePinger) PingHandler {
	return &pingHandler{
		logger: logger,
		store:  store,
	}
}

func (that *pingHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := that.store.Ping(r.Context()); err != nil {
		that.logger.Warn("store ping failed", zap.Error(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Debug("failed to write pong", zap.Error(err))
	}
}
