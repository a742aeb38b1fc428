package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository"
)

type gameReader interface {
	GetByID(ctx context.Context, id string) (*entity.Game, error)
}

// Hub - fans committed snapshots of a game out to local subscribers.
// One Redis subscription per game is shared by all of its local subscribers.
type Hub struct {
	logger       *zap.Logger
	client       *redis.Client
	games        gameReader
	storeTimeout time.Duration

	open func(ctx, runCtx context.Context, gameID string) (*redis.PubSub, error)

	mu     sync.Mutex
	topics map[string]*topic
}

// topic - ready is closed once the Redis subscription is open, openErr is set before that
// if it failed. endErr is set before done is closed when the game went away.
type topic struct {
	refs     int
	ready    chan struct{}
	openErr  error
	requests chan request
	done     chan struct{}
	endErr   error
	cancel   context.CancelFunc
}

// request - join when reply is set, leave otherwise.
type request struct {
	subscriber chan *entity.Game
	reply      chan error
}

func NewHub(logger *zap.Logger, client *redis.Client, games gameReader, storeTimeout time.Duration) *Hub {
	hub := &Hub{
		logger:       logger.With(zap.String("component", "replication_hub")),
		client:       client,
		games:        games,
		storeTimeout: storeTimeout,
		topics:       make(map[string]*topic),
	}

	hub.open = hub.openTopic

	return hub
}

// Subscribe - the returned channel first yields the current snapshot, then every newer one.
// A subscriber that falls behind only keeps the latest snapshot. The channel is closed once ctx is done.
func (that *Hub) Subscribe(ctx context.Context, gameID string) (<-chan *entity.Game, error) {
	t, err := that.acquire(ctx, gameID)
	if err != nil {
		return nil, err
	}

	subscriber := make(chan *entity.Game, 1)
	reply := make(chan error, 1)

	select {
	case t.requests <- request{subscriber: subscriber, reply: reply}:
		err = <-reply
	case <-t.done:
		err = t.endErr
		if err == nil {
			err = fmt.Errorf("%w: updates of game %s closed", apperror.ErrStoreUnavailable, gameID)
		}
	}

	if err != nil {
		that.release(gameID, t, nil)
		return nil, err
	}

	go func() {
		<-ctx.Done()
		that.release(gameID, t, subscriber)
	}()

	return subscriber, nil
}

// Close - stops every topic and closes all subscriber channels.
func (that *Hub) Close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for gameID, t := range that.topics {
		t.cancel()
		delete(that.topics, gameID)
	}
}

// acquire - the Redis subscription is opened outside mu, so a slow open only holds up
// subscribers of the same game.
func (that *Hub) acquire(ctx context.Context, gameID string) (*topic, error) {
	that.mu.Lock()

	t, ok := that.topics[gameID]
	if ok {
		t.refs++
		that.mu.Unlock()

		return that.awaitReady(ctx, gameID, t)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	t = &topic{
		refs:     1,
		ready:    make(chan struct{}),
		requests: make(chan request),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	that.topics[gameID] = t
	that.mu.Unlock()

	pubsub, err := that.open(ctx, runCtx, gameID)
	if err != nil {
		t.openErr = err
		cancel()

		that.mu.Lock()
		t.refs--
		if that.topics[gameID] == t {
			delete(that.topics, gameID)
		}
		that.mu.Unlock()

		close(t.ready)

		return nil, err
	}

	close(t.ready)

	go that.run(runCtx, gameID, t, pubsub)

	return t, nil
}

func (that *Hub) awaitReady(ctx context.Context, gameID string, t *topic) (*topic, error) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		that.release(gameID, t, nil)
		return nil, fmt.Errorf("failed to subscribe to game %s: %w", gameID, ctx.Err())
	}

	if t.openErr != nil {
		that.release(gameID, t, nil)
		return nil, t.openErr
	}

	return t, nil
}

func (that *Hub) release(gameID string, t *topic, subscriber chan *entity.Game) {
	if subscriber != nil {
		select {
		case t.requests <- request{subscriber: subscriber}:
		case <-t.done:
		}
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	t.refs--
	if t.refs > 0 {
		return
	}

	if that.topics[gameID] == t {
		delete(that.topics, gameID)
	}

	t.cancel()
}

// openTopic - subscribes to the game's updates channel and waits for Redis to confirm it.
func (that *Hub) openTopic(ctx, runCtx context.Context, gameID string) (*redis.PubSub, error) {
	pubsub := that.client.Subscribe(runCtx, repository.UpdatesChannel(gameID))

	receiveCtx, cancel := context.WithTimeout(ctx, that.storeTimeout)
	defer cancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		_ = pubsub.Close()

		return nil, apperror.StoreFailure("failed to subscribe to game "+gameID, err)
	}

	return pubsub, nil
}

// run - owns the subscriber set of one game. Every notification triggers a fresh read,
// so deliveries follow the store even when notifications race the initial read.
func (that *Hub) run(ctx context.Context, gameID string, t *topic, pubsub *redis.PubSub) {
	log := that.logger.With(zap.String("gameID", gameID))

	subscribers := make(map[chan *entity.Game]struct{})

	var latest *entity.Game

	defer func() {
		_ = pubsub.Close()

		for subscriber := range subscribers {
			close(subscriber)
		}

		that.mu.Lock()
		if that.topics[gameID] == t {
			delete(that.topics, gameID)
		}
		that.mu.Unlock()

		close(t.done)
	}()

	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-t.requests:
			if req.reply == nil {
				if _, ok := subscribers[req.subscriber]; ok {
					delete(subscribers, req.subscriber)
					close(req.subscriber)
				}

				continue
			}

			game, err := that.read(ctx, gameID)
			if err != nil {
				req.reply <- err
				continue
			}

			subscribers[req.subscriber] = struct{}{}
			req.reply <- nil

			if latest != nil && latest.Version == game.Version {
				offer(req.subscriber, latest.Clone())
				continue
			}

			latest = game
			broadcast(subscribers, latest)

		case msg, ok := <-messages:
			if !ok {
				log.Warn("updates subscription closed")
				return
			}

			var snapshot entity.Game
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err == nil &&
				latest != nil && snapshot.Version == latest.Version {
				continue
			}

			game, err := that.read(ctx, gameID)
			if errors.Is(err, apperror.ErrGameNotFound) {
				log.Info("game deleted, closing its subscribers")
				t.endErr = err

				return
			}

			if err != nil {
				log.Warn("failed to refresh game", zap.Error(err))
				continue
			}

			if latest != nil && latest.Version == game.Version {
				continue
			}

			latest = game
			broadcast(subscribers, latest)
		}
	}
}

func (that *Hub) read(ctx context.Context, gameID string) (*entity.Game, error) {
	readCtx, cancel := context.WithTimeout(ctx, that.storeTimeout)
	defer cancel()

	game, err := that.games.GetByID(readCtx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game: %w", err)
	}

	return game, nil
}

func broadcast(subscribers map[chan *entity.Game]struct{}, game *entity.Game) {
	for subscriber := range subscribers {
		offer(subscriber, game.Clone())
	}
}

// offer - never blocks; a pending stale snapshot is replaced by the newer one.
func offer(subscriber chan *entity.Game, game *entity.Game) {
	for {
		select {
		case subscriber <- game:
			return
		default:
		}

		select {
		case <-subscriber:
		default:
		}
	}
}
