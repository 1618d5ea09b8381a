package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"palaver/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type presenceHub interface {
	Register(connID, userID string) <-chan models.ServerEvent
	JoinRoom(connID, roomID string)
	Relay(roomID, originConnID string, ev models.ServerEvent)
	Typing(roomID, originConnID string, stop bool)
	Unregister(connID string)
}

type messageSender interface {
	Send(senderID, conversationID, body string) (models.Message, error)
}

// Connection pumps one websocket: client events in, hub events out. The
// connection's inbound events are processed strictly in order; different
// connections run concurrently through the hub.
type Connection struct {
	ws         wsConnection
	hub        presenceHub
	chats      messageSender
	connID     string
	userID     string
	fromClient chan models.ClientEvent
	fromServer <-chan models.ServerEvent
	errorCh    chan error
}

func NewConnection(
	hub presenceHub,
	chats messageSender,
	ws wsConnection,
	connID string,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		chats:      chats,
		connID:     connID,
		userID:     userID,
		fromClient: make(chan models.ClientEvent),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		// Teardown may race a transport-level disconnect notification;
		// Unregister is idempotent so both paths are safe.
		c.hub.Unregister(c.connID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			c.processClientEvent(ev)
		case ev, ok := <-c.fromServer:
			if !ok {
				// Hub tore this connection down (e.g. a re-register).
				return nil
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(ev models.ClientEvent) {
	switch ev.Type {
	case models.ClientEventSetup:
		// fromServer is nil until setup; a nil channel never fires in
		// the select above.
		c.fromServer = c.hub.Register(c.connID, c.userID)
	case models.ClientEventJoinRoom:
		c.hub.JoinRoom(c.connID, ev.ConversationID)
	case models.ClientEventSendMessage:
		msg, err := c.chats.Send(c.userID, ev.ConversationID, ev.Body)
		if err != nil {
			slog.Warn("websocket send rejected", "user_id", c.userID, "conversation_id", ev.ConversationID, "error", err)
			return
		}
		c.hub.Relay(ev.ConversationID, c.connID, models.ServerEvent{
			Type:           models.ServerEventNewMessage,
			ConversationID: ev.ConversationID,
			Message:        &msg,
		})
	case models.ClientEventTyping:
		c.hub.Typing(ev.ConversationID, c.connID, false)
	case models.ClientEventStopTyping:
		c.hub.Typing(ev.ConversationID, c.connID, true)
	}
}
