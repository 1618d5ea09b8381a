// Package api exposes the conversation, group and message operations
// over REST. Identity is taken from the upstream auth layer via the
// directory; handlers never see credentials.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"palaver/internal/chat"
	"palaver/internal/group"
	"palaver/internal/hydrate"
	"palaver/internal/models"

	"github.com/go-playground/validator/v10"
)

type identityResolver interface {
	Identity(r *http.Request) (string, error)
	List() ([]models.Profile, error)
}

type API struct {
	identity identityResolver
	chats    *chat.Service
	groups   *group.Manager
	hydrator *hydrate.Hydrator
	validate *validator.Validate
}

func New(identity identityResolver, chats *chat.Service, groups *group.Manager, hydrator *hydrate.Hydrator) *API {
	return &API{
		identity: identity,
		chats:    chats,
		groups:   groups,
		hydrator: hydrator,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type CreateGroupRequest struct {
	Name    string   `json:"name" validate:"required"`
	Members []string `json:"members" validate:"required,min=1,dive,required"`
}

type MembersRequest struct {
	Members []string `json:"members" validate:"required,min=1,dive,required"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := a.identity.Identity(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func decode(validate *validator.Validate, w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, models.Validation("body", "invalid request body"))
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			writeError(w, models.Validation(field, "failed validation: "+verrs[0].Tag()))
			return false
		}
		writeError(w, models.Validation("body", "invalid request"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrDependency):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	writeJSON(w, status, models.APIResponse{Success: false, Message: err.Error()})
}

// CreateGroupHandler handles POST /api/groups.
func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if !decode(a.validate, w, r, &req) {
		return
	}

	conv, err := a.groups.Create(req.Name, userID, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// ListGroupsHandler handles GET /api/groups.
func (a *API) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	convs, err := a.groups.ListForUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetGroupHandler handles GET /api/groups/{id}. Members only.
func (a *API) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	conv, err := a.groups.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !conv.HasMember(userID) {
		writeError(w, models.Authorization("you are not a member of this group"))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// AddMembersHandler handles POST /api/groups/{id}/members.
func (a *API) AddMembersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req MembersRequest
	if !decode(a.validate, w, r, &req) {
		return
	}

	conv, err := a.groups.AddMembers(r.PathValue("id"), userID, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RemoveMembersHandler handles DELETE /api/groups/{id}/members.
func (a *API) RemoveMembersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req MembersRequest
	if !decode(a.validate, w, r, &req) {
		return
	}

	conv, dissolved, err := a.groups.RemoveMembers(r.PathValue("id"), userID, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	if dissolved {
		writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "group dissolved"})
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// LeaveGroupHandler handles POST /api/groups/{id}/leave.
func (a *API) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	conv, dissolved, err := a.groups.Leave(r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if dissolved {
		writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "group dissolved"})
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// DeleteGroupHandler handles DELETE /api/groups/{id}.
func (a *API) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	if err := a.groups.Delete(r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "group deleted"})
}

// SendGroupMessageHandler handles POST /api/groups/{id}/messages.
func (a *API) SendGroupMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !decode(a.validate, w, r, &req) {
		return
	}

	msg, err := a.chats.SendToGroup(userID, r.PathValue("id"), req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SendDirectMessageHandler handles POST /api/messages/{receiverId}. The
// conversation is created implicitly on the first message between the
// pair.
func (a *API) SendDirectMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !decode(a.validate, w, r, &req) {
		return
	}

	msg, _, err := a.chats.SendDirect(userID, r.PathValue("receiverId"), req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ListConversationsHandler handles GET /api/conversations.
func (a *API) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	convs, err := a.chats.ListConversations(userID, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetConversationHandler handles GET /api/conversations/{id}: the full
// hydrated view with members and messages resolved to display records.
func (a *API) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	hc, err := a.hydrator.Hydrate(r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hc)
}

// ListMessagesHandler handles GET /api/conversations/{id}/messages: the
// raw ordered messages without profile enrichment.
func (a *API) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	msgs, err := a.chats.History(r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// DeleteConversationHandler handles DELETE /api/conversations/{id} for
// direct conversations. Groups go through the group endpoints.
func (a *API) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	if err := a.chats.DeleteDirect(r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "conversation deleted"})
}

// UsersHandler handles GET /api/users: all known users in the
// member-visible shape.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}

	profiles, err := a.identity.List()
	if err != nil {
		writeError(w, err)
		return
	}
	users := make([]models.DisplayUser, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, p.Display())
	}
	writeJSON(w, http.StatusOK, users)
}
