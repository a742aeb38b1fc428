package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/transport/apierror"
)

const (
	writeTimeout = 5 * time.Second

	closeReasonGameEnded = "game ended"
)

type gameUseCase interface {
	SubmitMove(ctx context.Context, gameID string, column int) (*entity.Game, error)
	ResetGame(ctx context.Context, gameID string) (*entity.Game, error)
}

type snapshotHub interface {
	Subscribe(ctx context.Context, gameID string) (<-chan *entity.Game, error)
}

// session - one client connection watching one game.
type session struct {
	gameID string
	conn   *websocket.Conn
}

type Server struct {
	logger *zap.Logger
	games  gameUseCase
	hub    snapshotHub

	handlers map[string]func(ctx context.Context, sess *session, message *Message) error
}

func New(logger *zap.Logger, games gameUseCase, hub snapshotHub) *Server {
	server := &Server{
		logger: logger.With(zap.String("component", "websocket")),
		games:  games,
		hub:    hub,

		handlers: make(map[string]func(context.Context, *session, *Message) error),
	}

	server.handlers[actionGameMove] = server.handleGameMove
	server.handlers[actionGameReset] = server.handleGameReset

	return server
}

// ServeHTTP - upgrades GET /ws?game=<id> and streams the game's snapshots until the client leaves.
func (that *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		http.Error(w, "game is required", http.StatusBadRequest)
		return
	}

	log := that.logger.With(zap.String("gameID", gameID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, err := that.hub.Subscribe(ctx, gameID)
	if err != nil {
		status, message := apierror.Describe(err)
		log.Debug("subscription refused", zap.Error(err))
		http.Error(w, message, status)

		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	log.Info("WebSocket connection established")

	sess := &session{gameID: gameID, conn: conn}

	go that.pushUpdates(ctx, cancel, sess, updates)

	that.handleMessages(ctx, sess)

	log.Info("WebSocket connection closed")
}

// pushUpdates - writes every snapshot the hub yields as a game:state message.
// The connection is closed once the hub stops, e.g. after the game was deleted.
func (that *Server) pushUpdates(ctx context.Context, cancel context.CancelFunc, sess *session, updates <-chan *entity.Game) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case game, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					that.logger.Info("game updates ended", zap.String("gameID", sess.gameID))
					_ = sess.conn.Close(websocket.StatusNormalClosure, closeReasonGameEnded)
				}

				return
			}

			if err := that.send(ctx, sess, actionGameState, ResponsePayload{Game: game}); err != nil {
				that.logger.Debug("failed to push snapshot", zap.String("gameID", sess.gameID), zap.Error(err))
				return
			}
		}
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, sess *session) {
	log := that.logger.With(zap.String("method", "handleMessages"), zap.String("gameID", sess.gameID))

	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
			default:
				log.Debug("error reading message", zap.Error(err))
			}

			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Debug("failed to unmarshal message", zap.Error(err))

			if err = that.sendError(ctx, sess, "", "malformed message"); err != nil {
				return
			}

			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			if err = that.sendError(ctx, sess, message.Action, "unknown action"); err != nil {
				return
			}

			continue
		}

		if err = handler(ctx, sess, &message); err != nil {
			log.Debug("failed to answer message", zap.String("action", message.Action), zap.Error(err))
			return
		}
	}
}

func (that *Server) send(ctx context.Context, sess *session, action string, payload ResponsePayload) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(writeCtx, sess.conn, response{Action: action, Payload: payload})
}

func (that *Server) sendError(ctx context.Context, sess *session, action, errorMsg string) error {
	return that.send(ctx, sess, action, ResponsePayload{Error: errorMsg})
}
