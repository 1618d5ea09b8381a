package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"palaver/internal/models"
)

type mockWS struct {
	readCh      chan models.ClientEvent
	writeCh     chan any
	closeCh     chan struct{}
	closeOnce   sync.Once
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientEvent, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.closeOnce.Do(func() {
		m.closed = true
		close(m.closeCh)
	})
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case ev, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientEvent); ok {
			*ptr = ev
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type hubCall struct {
	op     string
	connID string
	roomID string
	ev     models.ServerEvent
	stop   bool
}

type mockHub struct {
	calls chan hubCall
	out   chan models.ServerEvent
}

func newMockHub() *mockHub {
	return &mockHub{
		calls: make(chan hubCall, 20),
		out:   make(chan models.ServerEvent, 10),
	}
}

func (m *mockHub) Register(connID, userID string) <-chan models.ServerEvent {
	m.calls <- hubCall{op: "register", connID: connID, roomID: userID}
	return m.out
}

func (m *mockHub) JoinRoom(connID, roomID string) {
	m.calls <- hubCall{op: "join", connID: connID, roomID: roomID}
}

func (m *mockHub) Relay(roomID, originConnID string, ev models.ServerEvent) {
	m.calls <- hubCall{op: "relay", connID: originConnID, roomID: roomID, ev: ev}
}

func (m *mockHub) Typing(roomID, originConnID string, stop bool) {
	m.calls <- hubCall{op: "typing", connID: originConnID, roomID: roomID, stop: stop}
}

func (m *mockHub) Unregister(connID string) {
	m.calls <- hubCall{op: "unregister", connID: connID}
}

func (m *mockHub) next(t *testing.T) hubCall {
	t.Helper()
	select {
	case c := <-m.calls:
		return c
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for hub call")
	}
	return hubCall{}
}

type mockSender struct {
	err  error
	sent chan models.ClientEvent
}

func (m *mockSender) Send(senderID, conversationID, body string) (models.Message, error) {
	m.sent <- models.ClientEvent{ConversationID: conversationID, Body: body}
	if m.err != nil {
		return models.Message{}, m.err
	}
	return models.Message{ID: "m1", ConversationID: conversationID, SenderID: senderID, Body: body}, nil
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	sender := &mockSender{sent: make(chan models.ClientEvent, 10)}
	sock := newMockWS()

	conn := NewConnection(hub, sender, sock, "conn1", "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// 1. setup registers with the hub.
	sock.readCh <- models.ClientEvent{Type: models.ClientEventSetup}
	if c := hub.next(t); c.op != "register" || c.connID != "conn1" || c.roomID != "alice" {
		t.Errorf("expected register for conn1/alice, got %+v", c)
	}

	// 2. Hub events flow out to the socket.
	hub.out <- models.ServerEvent{Type: models.ServerEventConnected}
	select {
	case got := <-sock.writeCh:
		ev, ok := got.(models.ServerEvent)
		if !ok || ev.Type != models.ServerEventConnected {
			t.Errorf("expected connected written to socket, got %+v", got)
		}
	case <-time.After(1 * time.Second):
		t.Error("socket did not receive hub event")
	}

	// 3. joinRoom subscribes.
	sock.readCh <- models.ClientEvent{Type: models.ClientEventJoinRoom, ConversationID: "room1"}
	if c := hub.next(t); c.op != "join" || c.roomID != "room1" {
		t.Errorf("expected join room1, got %+v", c)
	}

	// 4. sendMessage persists then relays, excluding this connection.
	sock.readCh <- models.ClientEvent{Type: models.ClientEventSendMessage, ConversationID: "room1", Body: "hi"}
	select {
	case got := <-sender.sent:
		if got.Body != "hi" {
			t.Errorf("sender got wrong body: %+v", got)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("message never reached the sender")
	}
	if c := hub.next(t); c.op != "relay" || c.roomID != "room1" || c.connID != "conn1" ||
		c.ev.Type != models.ServerEventNewMessage || c.ev.Message == nil || c.ev.Message.Body != "hi" {
		t.Errorf("expected newMessage relay, got %+v", c)
	}

	// 5. typing signals.
	sock.readCh <- models.ClientEvent{Type: models.ClientEventTyping, ConversationID: "room1"}
	if c := hub.next(t); c.op != "typing" || c.stop {
		t.Errorf("expected typing start, got %+v", c)
	}
	sock.readCh <- models.ClientEvent{Type: models.ClientEventStopTyping, ConversationID: "room1"}
	if c := hub.next(t); c.op != "typing" || !c.stop {
		t.Errorf("expected typing stop, got %+v", c)
	}

	// 6. Teardown unregisters and closes the socket.
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Handle did not return after cancel")
	}
	if c := hub.next(t); c.op != "unregister" || c.connID != "conn1" {
		t.Errorf("expected unregister, got %+v", c)
	}
	if !sock.closed {
		t.Error("socket Close not called")
	}
}

func TestConnection_RejectedSendDoesNotRelay(t *testing.T) {
	hub := newMockHub()
	sender := &mockSender{
		err:  models.Authorization("not a member"),
		sent: make(chan models.ClientEvent, 10),
	}
	sock := newMockWS()

	conn := NewConnection(hub, sender, sock, "conn1", "mallory")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error)
	go func() { done <- conn.Handle(ctx) }()

	sock.readCh <- models.ClientEvent{Type: models.ClientEventSendMessage, ConversationID: "room1", Body: "hi"}
	select {
	case <-sender.sent:
	case <-time.After(1 * time.Second):
		t.Fatal("send never attempted")
	}

	cancel()
	<-done

	for {
		select {
		case c := <-hub.calls:
			if c.op == "relay" {
				t.Errorf("rejected message was relayed: %+v", c)
			}
		default:
			return
		}
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	sender := &mockSender{sent: make(chan models.ClientEvent, 10)}
	sock := newMockWS()
	sock.errToReturn = errors.New("read error")

	conn := NewConnection(hub, sender, sock, "conn2", "bob")

	done := make(chan error)
	go func() { done <- conn.Handle(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Handle did not return on error")
	}

	if !sock.closed {
		t.Error("socket Close not called")
	}
	if c := hub.next(t); c.op != "unregister" {
		t.Errorf("expected unregister on teardown, got %+v", c)
	}
}
