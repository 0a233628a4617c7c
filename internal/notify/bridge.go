package notify

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Sink receives Change Events handed off by the Bridge. The Subscription Router implements this.
type Sink interface {
	Dispatch(e Event)
}

// Bridge owns one long-lived LISTEN connection per managed channel and hands off every notification it receives to a
// Sink. A channel's connection loss never affects any other channel; each runs its own reconnect loop.
type Bridge struct {
	pool    *pgxpool.Pool
	sink    Sink
	initial time.Duration
	max     time.Duration
	log     zerolog.Logger
}

// NewBridge builds a Notification Bridge. initial and max bound the exponential backoff used when a channel's
// connection drops.
func NewBridge(pool *pgxpool.Pool, sink Sink, initial, max time.Duration, logger zerolog.Logger) *Bridge {
	return &Bridge{pool: pool, sink: sink, initial: initial, max: max, log: logger.With().Str("component", "notify_bridge").Logger()}
}

// Run starts one listener goroutine per table's channel and blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, tables []string) {
	for _, table := range tables {
		go b.listenWithBackoff(ctx, ChannelFor(table))
	}
	<-ctx.Done()
}

// listenWithBackoff runs listenOnce in a loop, reconnecting with exponential backoff and jitter on every failure
// until ctx is cancelled.
func (b *Bridge) listenWithBackoff(ctx context.Context, channel string) {
	delay := b.initial
	for {
		err := b.listenOnce(ctx, channel)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		b.log.Warn().Err(err).Str("channel", channel).Dur("retry_in", delay).Msg("listener connection lost, reconnecting")

		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > b.max {
			delay = b.max
		}
	}
}

// listenOnce acquires a dedicated connection, issues LISTEN, and forwards notifications to the sink until the
// connection fails or ctx is cancelled.
func (b *Bridge) listenOnce(ctx context.Context, channel string) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN "`+channel+`"`); err != nil {
		return err
	}

	b.log.Debug().Str("channel", channel).Msg("listening")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}

		event, err := ParseEvent(notification.Channel, notification.Payload)
		if err != nil {
			b.log.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable change event")
			continue
		}
		b.sink.Dispatch(event)
	}
}

// Emit publishes a synthetic Change Event, used by coordinators whose mutations should notify subscribers outside of
// a direct row trigger (e.g. the Bucket Coordinator emitting on buckets_changes only after cross-tier compensation
// has settled).
func Emit(ctx context.Context, pool *pgxpool.Pool, table string, op Op, data, oldData json.RawMessage) error {
	payload, err := json.Marshal(Event{Table: table, Operation: op, NewData: data, OldData: oldData})
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, "SELECT pg_notify($1, $2)", ChannelFor(table), string(payload))
	return err
}
