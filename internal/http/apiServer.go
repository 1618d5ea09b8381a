// Package http wires the handlers into the two listeners: the public
// API server and the internal admin server the auth collaborator talks
// to.
package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"palaver/internal/api"
	"palaver/internal/chat"
	"palaver/internal/directory"
	"palaver/internal/group"
	"palaver/internal/hydrate"
	"palaver/internal/presence"
	"palaver/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(
	dir *directory.Directory,
	hub *presence.Hub,
	chats *chat.Service,
	groups *group.Manager,
	hydrator *hydrate.Hydrator,
	addr string,
) *APIServer {
	wsServer := ws.NewServer(dir, hub, chats)
	apiHandlers := api.New(dir, chats, groups, hydrator)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/users", apiHandlers.UsersHandler)

	mux.HandleFunc("POST /api/groups", apiHandlers.CreateGroupHandler)
	mux.HandleFunc("GET /api/groups", apiHandlers.ListGroupsHandler)
	mux.HandleFunc("GET /api/groups/{id}", apiHandlers.GetGroupHandler)
	mux.HandleFunc("DELETE /api/groups/{id}", apiHandlers.DeleteGroupHandler)
	mux.HandleFunc("POST /api/groups/{id}/members", apiHandlers.AddMembersHandler)
	mux.HandleFunc("DELETE /api/groups/{id}/members", apiHandlers.RemoveMembersHandler)
	mux.HandleFunc("POST /api/groups/{id}/leave", apiHandlers.LeaveGroupHandler)
	mux.HandleFunc("POST /api/groups/{id}/messages", apiHandlers.SendGroupMessageHandler)

	mux.HandleFunc("GET /api/conversations", apiHandlers.ListConversationsHandler)
	mux.HandleFunc("GET /api/conversations/{id}", apiHandlers.GetConversationHandler)
	mux.HandleFunc("DELETE /api/conversations/{id}", apiHandlers.DeleteConversationHandler)
	mux.HandleFunc("GET /api/conversations/{id}/messages", apiHandlers.ListMessagesHandler)

	mux.HandleFunc("POST /api/messages/{receiverId}", apiHandlers.SendDirectMessageHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
