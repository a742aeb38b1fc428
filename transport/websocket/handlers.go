package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/transport/apierror"
)

// handleGameMove - the committed state goes back to the sender, every watcher gets it as game:state.
func (that *Server) handleGameMove(ctx context.Context, sess *session, msg *Message) error {
	log := that.logger.With(zap.String("method", "handleGameMove"), zap.String("gameID", sess.gameID))

	var payloadReq RequestPayload

	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
			return that.sendError(ctx, sess, msg.Action, "malformed payload")
		}
	}

	if payloadReq.Column == nil {
		return that.sendError(ctx, sess, msg.Action, "column is required")
	}

	game, err := that.games.SubmitMove(ctx, sess.gameID, *payloadReq.Column)
	if err != nil {
		return that.sendRejection(ctx, log, sess, msg.Action, err, game)
	}

	log.Debug("move accepted", zap.Int("column", *payloadReq.Column), zap.Int("moveCount", game.MoveCount))

	if err = that.send(ctx, sess, msg.Action, ResponsePayload{Game: game}); err != nil {
		return fmt.Errorf("failed to send move result: %w", err)
	}

	return nil
}

func (that *Server) handleGameReset(ctx context.Context, sess *session, msg *Message) error {
	log := that.logger.With(zap.String("method", "handleGameReset"), zap.String("gameID", sess.gameID))

	game, err := that.games.ResetGame(ctx, sess.gameID)
	if err != nil {
		return that.sendRejection(ctx, log, sess, msg.Action, err, nil)
	}

	log.Info("game reset by client")

	if err = that.send(ctx, sess, msg.Action, ResponsePayload{Game: game}); err != nil {
		return fmt.Errorf("failed to send reset result: %w", err)
	}

	return nil
}

func (that *Server) sendRejection(ctx context.Context, log *zap.Logger, sess *session, action string, err error, game *entity.Game) error {
	status, message := apierror.Describe(err)

	switch {
	case errors.Is(err, context.Canceled):
		log.Debug("request abandoned", zap.Error(err))
		return err
	case errors.Is(err, apperror.ErrInvalidInput), errors.Is(err, apperror.ErrIllegalMove):
		log.Debug("request rejected", zap.Error(err))
	default:
		log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}

	if sendErr := that.send(ctx, sess, action, ResponsePayload{Game: game, Error: message}); sendErr != nil {
		return fmt.Errorf("failed to send error response: %w", sendErr)
	}

	return nil
}
