package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/transport/apierror"
)

const retryAfterSeconds = "1"

type gameUseCase interface {
	CreateGame(ctx context.Context) (*entity.Game, error)
	GetGame(ctx context.Context, gameID string) (*entity.Game, error)
	SubmitMove(ctx context.Context, gameID string, column int) (*entity.Game, error)
	ResetGame(ctx context.Context, gameID string) (*entity.Game, error)
	DeleteGame(ctx context.Context, gameID string) error
	GetArchivedGame(ctx context.Context, gameID string) (*entity.ArchivedGame, error)
}

type GameHandlers interface {
	CreateGame(w http.ResponseWriter, r *http.Request)
	GetGame(w http.ResponseWriter, r *http.Request)
	SubmitMove(w http.ResponseWriter, r *http.Request)
	ResetGame(w http.ResponseWriter, r *http.Request)
	DeleteGame(w http.ResponseWriter, r *http.Request)
	GetArchivedGame(w http.ResponseWriter, r *http.Request)
}

type gameHandlers struct {
	logger *zap.Logger
	games  gameUseCase
}

type moveRequest struct {
	Column *int `json:"column"`
}

type gameResponse struct {
	Game  *entity.Game `json:"game,omitempty"`
	Error string       `json:"error,omitempty"`
}

type archiveResponse struct {
	Game *entity.ArchivedGame `json:"game"`
}

func NewGameHandlers(logger *zap.Logger, games gameUseCase) GameHandlers {
	return &gameHandlers{
		logger: logger.With(zap.String("component", "rest")),
		games:  games,
	}
}

func (that *gameHandlers) CreateGame(w http.ResponseWriter, r *http.Request) {
	game, err := that.games.CreateGame(r.Context())
	if err != nil {
		that.writeError(w, "CreateGame", err, nil)
		return
	}

	that.writeJSON(w, http.StatusCreated, gameResponse{Game: game})
}

func (that *gameHandlers) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := that.games.GetGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		that.writeError(w, "GetGame", err, nil)
		return
	}

	that.writeJSON(w, http.StatusOK, gameResponse{Game: game})
}

// SubmitMove - rejected moves answer with the state they were judged against.
func (that *gameHandlers) SubmitMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeJSON(w, http.StatusBadRequest, gameResponse{Error: "malformed move request"})
		return
	}

	if req.Column == nil {
		that.writeJSON(w, http.StatusBadRequest, gameResponse{Error: "column is required"})
		return
	}

	game, err := that.games.SubmitMove(r.Context(), chi.URLParam(r, "gameID"), *req.Column)
	if err != nil {
		that.writeError(w, "SubmitMove", err, game)
		return
	}

	that.writeJSON(w, http.StatusOK, gameResponse{Game: game})
}

func (that *gameHandlers) ResetGame(w http.ResponseWriter, r *http.Request) {
	game, err := that.games.ResetGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		that.writeError(w, "ResetGame", err, nil)
		return
	}

	that.writeJSON(w, http.StatusOK, gameResponse{Game: game})
}

func (that *gameHandlers) DeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := that.games.DeleteGame(r.Context(), chi.URLParam(r, "gameID")); err != nil {
		that.writeError(w, "DeleteGame", err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetArchivedGame - the stored result of a finished game, kept after the live game expires.
func (that *gameHandlers) GetArchivedGame(w http.ResponseWriter, r *http.Request) {
	archived, err := that.games.GetArchivedGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		that.writeError(w, "GetArchivedGame", err, nil)
		return
	}

	that.writeJSON(w, http.StatusOK, archiveResponse{Game: archived})
}

func (that *gameHandlers) writeError(w http.ResponseWriter, method string, err error, game *entity.Game) {
	status, message := apierror.Describe(err)

	log := that.logger.With(zap.String("method", method), zap.Error(err))
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed")
	case errors.Is(err, apperror.ErrConcurrentUpdateExhausted):
		log.Warn("request rejected")
	default:
		log.Debug("request rejected")
	}

	if apierror.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	that.writeJSON(w, status, gameResponse{Game: game, Error: message})
}

func (that *gameHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Debug("failed to write response", zap.Error(err))
	}
}
