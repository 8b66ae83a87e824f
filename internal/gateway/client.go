package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collabstream/internal/collab"
	"collabstream/internal/protocol"
	"collabstream/internal/updatelog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. CRDT deltas can be large.
	maxMessageSize = 1 << 20
)

// client is one authenticated websocket session: it relays the session's
// appends into the update log and streams subscribed objects' events back
// in position order.
type client struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	workspaceID collab.WorkspaceID
	origin      collab.ActorOrigin

	// Buffered channel of outbound messages.
	send chan BaseMessage

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[collab.ObjectID]context.CancelFunc
}

func newClient(srv *Server, conn *websocket.Conn, workspaceID collab.WorkspaceID, origin collab.ActorOrigin) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		srv:         srv,
		conn:        conn,
		log:         srv.log.With("workspace_id", workspaceID, "actor", origin.String()),
		workspaceID: workspaceID,
		origin:      origin,
		send:        make(chan BaseMessage, 256),
		ctx:         ctx,
		cancel:      cancel,
		subs:        make(map[collab.ObjectID]context.CancelFunc),
	}
}

// readPump pumps messages from the websocket connection.
//
// The application runs readPump in a per-connection goroutine, ensuring at
// most one reader per connection.
func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket connection closed unexpectedly", "error", err)
			}
			return
		}

		var msg BaseMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("", CodeMalformedMessage, "invalid message envelope")
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump pumps messages to the websocket connection.
//
// A goroutine running writePump is started per connection, ensuring at
// most one writer per connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *client) handleMessage(msg BaseMessage) {
	switch msg.Type {
	case TypeOpen:
		c.handleOpen(msg)
	case TypeClose:
		c.handleClose(msg)
	case TypeUpdate:
		c.handleUpdate(msg)
	default:
		c.sendError(msg.ID, CodeMalformedMessage, "unknown message type "+msg.Type)
	}
}

func (c *client) handleOpen(msg BaseMessage) {
	var payload OpenPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError(msg.ID, CodeMalformedMessage, "invalid open payload")
		return
	}
	objectID, err := collab.ParseObjectID(payload.ObjectID)
	if err != nil {
		c.sendError(msg.ID, CodeMalformedMessage, "invalid object id")
		return
	}

	opts := updatelog.ConsumerOptions{
		StreamName:    c.srv.cfg.StreamName,
		FilterSubject: c.srv.subject(c.workspaceID, objectID),
	}
	if payload.Checkpoint != "" {
		checkpoint, err := collab.ParseRid(payload.Checkpoint)
		if err != nil {
			c.sendError(msg.ID, CodeMalformedMessage, "invalid checkpoint")
			return
		}
		opts.StartAfter = &checkpoint
	}

	consumer, err := c.srv.provider.NewConsumer(opts)
	if err != nil {
		c.sendError(msg.ID, CodeInternalError, "subscription failed")
		return
	}

	subCtx, cancel := context.WithCancel(c.ctx)
	sub, err := consumer.Subscribe(subCtx)
	if err != nil {
		cancel()
		if errors.Is(err, updatelog.ErrCheckpointExpired) {
			c.sendError(msg.ID, CodeCheckpointExpired,
				"checkpoint no longer retained, fetch a full snapshot")
			return
		}
		c.log.Error("Subscription failed", "object_id", objectID, "error", err)
		c.sendError(msg.ID, CodeInternalError, "subscription failed")
		return
	}

	c.mu.Lock()
	if prev, ok := c.subs[objectID]; ok {
		prev()
	}
	c.subs[objectID] = cancel
	c.mu.Unlock()

	c.reply(BaseMessage{
		ID:   msg.ID,
		Type: TypeOpenAck,
		Payload: mustMarshal(OpenAckPayload{
			ObjectID: objectID.String(),
			Backlog:  sub.Backlog,
		}),
	})

	go c.relay(subCtx, objectID, sub)
}

// relay forwards one object's log records to the peer in position order.
func (c *client) relay(ctx context.Context, objectID collab.ObjectID, sub *updatelog.Subscription) {
	for {
		var msg updatelog.Message
		var ok bool
		select {
		case msg, ok = <-sub.Messages:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		ev, err := protocol.Decode(msg.ID(), msg.Header(), msg.Data())
		if err != nil {
			c.log.Warn("Skipping malformed update record",
				"object_id", objectID,
				"position", msg.ID(),
				"error", err,
			)
			_ = msg.Term()
			continue
		}

		frame := BaseMessage{
			Type: TypeUpdate,
			Payload: mustMarshal(UpdatePayload{
				ObjectID: ev.ObjectID.String(),
				Kind:     int32(ev.Kind),
				Flags:    uint8(ev.Flags),
				Sender:   ev.Sender.String(),
				Position: ev.Position.String(),
				Data:     ev.Payload,
			}),
		}
		select {
		case c.send <- frame:
			_ = msg.Ack()
		case <-ctx.Done():
			// Not acked: redelivered after the client reconnects.
			return
		}
	}
}

func (c *client) handleUpdate(msg BaseMessage) {
	var payload UpdatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError(msg.ID, CodeMalformedMessage, "invalid update payload")
		return
	}
	objectID, err := collab.ParseObjectID(payload.ObjectID)
	if err != nil {
		c.sendError(msg.ID, CodeMalformedMessage, "invalid object id")
		return
	}

	// The sender is always the authenticated session, never
	// client-supplied.
	header, data := protocol.Encode(protocol.UpdateEvent{
		Sender:   c.origin,
		ObjectID: objectID,
		Kind:     collab.KindFromInt(payload.Kind),
		Flags:    collab.UpdateFlags(payload.Flags),
		Payload:  payload.Data,
	})

	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	if err := c.srv.appender.Append(ctx, c.srv.subject(c.workspaceID, objectID), header, data); err != nil {
		c.log.Error("Failed to append update", "object_id", objectID, "error", err)
		c.sendError(msg.ID, CodeInternalError, "append failed")
		return
	}
}

func (c *client) handleClose(msg BaseMessage) {
	var payload ClosePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError(msg.ID, CodeMalformedMessage, "invalid close payload")
		return
	}
	objectID, err := collab.ParseObjectID(payload.ObjectID)
	if err != nil {
		c.sendError(msg.ID, CodeMalformedMessage, "invalid object id")
		return
	}

	c.mu.Lock()
	if cancel, ok := c.subs[objectID]; ok {
		cancel()
		delete(c.subs, objectID)
	}
	c.mu.Unlock()

	c.reply(BaseMessage{ID: msg.ID, Type: TypeCloseAck})
}

func (c *client) reply(msg BaseMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

func (c *client) sendError(id, code, message string) {
	c.reply(BaseMessage{
		ID:      id,
		Type:    TypeError,
		Payload: mustMarshal(ErrorPayload{Code: code, Message: message}),
	})
}
