// Package realtime relays team chat over websockets: one room per team,
// membership-checked joins, and persist-then-broadcast sends.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/utils"
)

// MessageStore persists chat lines and serves the join backlog.
type MessageStore interface {
	Create(ctx context.Context, teamID, senderID uint, content string) (*models.Message, error)
	ListSince(ctx context.Context, teamID, afterID uint) ([]models.Message, error)
}

// MembershipChecker answers roster questions.
type MembershipChecker interface {
	IsMember(ctx context.Context, teamID, userID uint) (bool, error)
}

type Config struct {
	SendBuffer   int
	PingInterval time.Duration
}

func (c Config) pongWait() time.Duration {
	return c.PingInterval * 2
}

// Relay handles the event protocol of every connection.
type Relay struct {
	hub       *Hub
	messages  MessageStore
	members   MembershipChecker
	backplane Backplane
	cfg       Config
	log       *logrus.Entry

	locksMu sync.Mutex
	locks   map[uint]*roomLock
}

// roomLock is shared by every sender and joiner of one room. refs counts
// holders and waiters; the entry is dropped when it reaches zero.
type roomLock struct {
	sync.Mutex
	refs int
}

func NewRelay(hub *Hub, messages MessageStore, members MembershipChecker, backplane Backplane, cfg Config) *Relay {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Relay{
		hub:       hub,
		messages:  messages,
		members:   members,
		backplane: backplane,
		cfg:       cfg,
		log:       utils.Component("relay"),
		locks:     make(map[uint]*roomLock),
	}
}

// lockRoom serializes persist+publish for one team so every member sees
// messages in persistence order. Call the returned func to unlock.
func (r *Relay) lockRoom(teamID uint) func() {
	r.locksMu.Lock()
	l, ok := r.locks[teamID]
	if !ok {
		l = &roomLock{}
		r.locks[teamID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, teamID)
		}
		r.locksMu.Unlock()
	}
}

// Serve runs the connection of an authenticated user until it closes or ctx
// is done. It blocks until the write loop has let go of conn, since the
// websocket handler recycles the connection once it returns.
func (r *Relay) Serve(ctx context.Context, conn Conn, user *models.User) {
	c := NewClient(conn, user, r.cfg.SendBuffer)
	log := r.log.WithFields(logrus.Fields{"client_id": c.ID, "user_id": user.ID})
	log.Debug("client connected")

	go c.writePump(r.cfg.PingInterval)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.Done():
		}
	}()

	c.readPump(r.cfg.pongWait(), func(frame []byte) {
		r.HandleFrame(ctx, c, frame)
	})

	r.hub.Remove(c)
	c.Close()
	<-c.stopped
	log.Debug("client disconnected")
}

// HandleFrame dispatches one client frame.
func (r *Relay) HandleFrame(ctx context.Context, c *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		r.reject(c, apperror.BadRequest(apperror.CodeInvalidBody, "frame is not a valid event envelope"))
		return
	}

	switch env.Event {
	case EventJoinTeamRoom:
		var p JoinPayload
		if !r.decode(c, env.Data, &p) {
			return
		}
		r.join(ctx, c, p)
	case EventLeaveRoom:
		var p LeavePayload
		if !r.decode(c, env.Data, &p) {
			return
		}
		r.hub.Leave(p.TeamID, c)
		r.reply(c, EventLeftRoom, LeavePayload{TeamID: p.TeamID})
	case EventSendMessage:
		var p SendPayload
		if !r.decode(c, env.Data, &p) {
			return
		}
		r.send(ctx, c, p)
	default:
		r.reject(c, apperror.BadRequest(apperror.CodeUnknownEvent, "unknown event "+env.Event))
	}
}

func (r *Relay) decode(c *Client, data json.RawMessage, dst interface{}) bool {
	if len(data) == 0 || json.Unmarshal(data, dst) != nil {
		r.reject(c, apperror.BadRequest(apperror.CodeInvalidBody, "invalid event data"))
		return false
	}
	return true
}

func (r *Relay) authorizeRoom(ctx context.Context, c *Client, teamID uint) error {
	if teamID == 0 {
		return apperror.BadRequest(apperror.CodeInvalidID, "teamId is required")
	}
	ok, err := r.members.IsMember(ctx, teamID, c.User.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("team")
	}
	return nil
}

// join admits c to the room after a roster check and pushes the messages
// after SinceID. Holding the room lock keeps sends out while the backlog is
// read, so local broadcasts neither duplicate nor skip the backlog.
func (r *Relay) join(ctx context.Context, c *Client, p JoinPayload) {
	if err := r.authorizeRoom(ctx, c, p.TeamID); err != nil {
		r.reject(c, err)
		return
	}

	unlock := r.lockRoom(p.TeamID)
	defer unlock()

	backlog, err := r.messages.ListSince(ctx, p.TeamID, p.SinceID)
	if err != nil {
		utils.LogError("relay_backlog_failed", err, map[string]interface{}{"team_id": p.TeamID})
		r.reject(c, err)
		return
	}
	r.hub.Join(p.TeamID, c)

	payload := JoinedPayload{TeamID: p.TeamID, Backlog: make([]MessagePayload, 0, len(backlog))}
	for i := range backlog {
		payload.Backlog = append(payload.Backlog, NewMessagePayload(&backlog[i]))
	}
	r.reply(c, EventJoinedRoom, payload)
}

// send persists a message and publishes it to the room, sender included.
// Failures go back to the sender only, as messageError.
func (r *Relay) send(ctx context.Context, c *Client, p SendPayload) {
	fail := func(err error) {
		r.reply(c, EventMessageError, ErrorPayload{ClientMsgID: p.ClientMsgID, TeamID: p.TeamID, Body: apperror.ToBody(err)})
	}

	if p.SenderID != 0 && p.SenderID != c.User.ID {
		fail(apperror.Forbidden(apperror.CodeSenderMismatch, "senderId does not match the connection"))
		return
	}
	if err := r.authorizeRoom(ctx, c, p.TeamID); err != nil {
		fail(err)
		return
	}

	unlock := r.lockRoom(p.TeamID)
	defer unlock()

	msg, err := r.messages.Create(ctx, p.TeamID, c.User.ID, p.Content)
	if err != nil {
		if apperror.Is(err, apperror.KindInternal) {
			utils.LogError("relay_persist_failed", err, map[string]interface{}{"team_id": p.TeamID, "user_id": c.User.ID})
		}
		fail(err)
		return
	}

	frame, err := Encode(EventReceiveMessage, NewMessagePayload(msg))
	if err != nil {
		fail(apperror.Internal("failed to encode message", err))
		return
	}
	if err := r.backplane.Publish(ctx, p.TeamID, frame); err != nil {
		utils.LogError("relay_publish_failed", err, map[string]interface{}{"team_id": p.TeamID, "message_id": msg.ID})
		fail(&apperror.Error{
			Kind:    apperror.KindInternal,
			Code:    apperror.CodeAmbiguousOutcome,
			Message: "message was saved but could not be delivered",
			Err:     err,
		})
	}
}

func (r *Relay) reply(c *Client, event string, data interface{}) {
	frame, err := Encode(event, data)
	if err != nil {
		r.log.WithError(err).Error("failed to encode reply")
		return
	}
	if !c.Send(frame) {
		r.log.WithField("client_id", c.ID).Warn("reply dropped")
	}
}

func (r *Relay) reject(c *Client, err error) {
	r.reply(c, EventError, ErrorPayload{Body: apperror.ToBody(err)})
}
