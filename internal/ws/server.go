package ws

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type identityResolver interface {
	Identity(r *http.Request) (string, error)
}

// Server upgrades authenticated requests to websocket connections and
// hands them to the presence hub.
type Server struct {
	identity identityResolver
	hub      presenceHub
	chats    messageSender
	upgrader *websocket.Upgrader
}

func NewServer(identity identityResolver, hub presenceHub, chats messageSender) *Server {
	return &Server{
		identity: identity,
		hub:      hub,
		chats:    chats,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // origin policy is enforced upstream
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := s.identity.Identity(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	c := NewConnection(s.hub, s.chats, conn, uuid.NewString(), userID)
	if err := c.Handle(r.Context()); err != nil {
		log.Printf("connection %s closed with error: %v", userID, err)
	}
}
