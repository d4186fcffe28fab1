package worker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"teamcollab/realtime"
	"teamcollab/utils"
)

// Broadcaster is the local fan-out the worker feeds.
type Broadcaster interface {
	Broadcast(teamID uint, frame []byte) int
}

// BackplaneWorker subscribes to every room channel of the Redis backplane
// and delivers published frames to this instance's hub.
type BackplaneWorker struct {
	client *redis.Client
	hub    Broadcaster
	prefix string
	logger *logrus.Entry
}

func NewBackplaneWorker(client *redis.Client, hub Broadcaster, prefix string) *BackplaneWorker {
	return &BackplaneWorker{
		client: client,
		hub:    hub,
		prefix: prefix,
		logger: utils.Component("backplane"),
	}
}

// Start blocks until ctx is done, resubscribing after connection errors.
func (bw *BackplaneWorker) Start(ctx context.Context) {
	bw.logger.Info("Backplane worker started")

	for {
		if err := bw.run(ctx); err != nil {
			bw.logger.WithError(err).Warn("Backplane subscription lost, retrying")
		}
		select {
		case <-ctx.Done():
			bw.logger.Info("Backplane worker shutting down...")
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (bw *BackplaneWorker) run(ctx context.Context) error {
	sub := bw.client.PSubscribe(ctx, bw.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			bw.Deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Deliver routes one published frame to the local room it belongs to.
func (bw *BackplaneWorker) Deliver(channel string, frame []byte) {
	teamID, ok := realtime.ParseChannel(bw.prefix, channel)
	if !ok {
		bw.logger.WithField("channel", channel).Warn("Ignoring message on unexpected channel")
		return
	}
	n := bw.hub.Broadcast(teamID, frame)
	bw.logger.WithFields(logrus.Fields{"team_id": teamID, "delivered": n}).Debug("Frame delivered")
}
