// Package chat glues the conversation and message stores together for
// the send/history paths shared by the REST and websocket transports.
package chat

import (
	"log/slog"

	"palaver/internal/content"
	"palaver/internal/models"
	"palaver/internal/storage"
)

type Store interface {
	FindOrCreateDirect(userA, userB string) (models.Conversation, bool, error)
	GetConversation(id string) (models.Conversation, error)
	ListConversationsForUser(userID string, groupOnly bool) ([]models.Conversation, error)
	UpdateConversation(id string, fn func(*models.Conversation) (storage.UpdateOutcome, error)) (models.Conversation, error)
	AppendMessage(senderID, conversationID, body string, kind models.MessageKind, receiverID string) (models.Message, error)
	ListMessagesByConversation(conversationID string) ([]models.Message, error)
	SetLastMessage(conversationID string, msg models.Message) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// SendDirect delivers a one-to-one message, creating the conversation on
// the first message between the pair.
func (s *Service) SendDirect(senderID, receiverID, body string) (models.Message, models.Conversation, error) {
	body = content.SanitizeBody(body)

	conv, created, err := s.store.FindOrCreateDirect(senderID, receiverID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if created {
		slog.Info("direct conversation created", "conversation_id", conv.ID)
	}

	msg, err := s.store.AppendMessage(senderID, conv.ID, body, models.MessageKindIndividual, receiverID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := s.store.SetLastMessage(conv.ID, msg); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	conv.LastMessageID = msg.ID
	return msg, conv, nil
}

// SendToGroup delivers a message to a group the sender belongs to.
func (s *Service) SendToGroup(senderID, conversationID, body string) (models.Message, error) {
	body = content.SanitizeBody(body)

	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.IsGroup {
		return models.Message{}, models.NotFound("group conversation")
	}
	if !conv.HasMember(senderID) {
		return models.Message{}, models.Authorization("you are not a member of this conversation")
	}

	msg, err := s.store.AppendMessage(senderID, conversationID, body, models.MessageKindGroup, "")
	if err != nil {
		return models.Message{}, err
	}
	if err := s.store.SetLastMessage(conversationID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Send delivers a message into an existing conversation, picking the
// message kind from the conversation shape. Used by the websocket path,
// where the client addresses conversations, not receivers.
func (s *Service) Send(senderID, conversationID, body string) (models.Message, error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.HasMember(senderID) {
		return models.Message{}, models.Authorization("you are not a member of this conversation")
	}

	body = content.SanitizeBody(body)
	kind := models.MessageKindGroup
	receiverID := ""
	if !conv.IsGroup {
		kind = models.MessageKindIndividual
		receiverID = conv.OtherMember(senderID)
	}

	msg, err := s.store.AppendMessage(senderID, conversationID, body, kind, receiverID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.store.SetLastMessage(conversationID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// History returns the conversation's messages in persisted order, for
// members only.
func (s *Service) History(conversationID, userID string) ([]models.Message, error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, models.Authorization("you are not a member of this conversation")
	}
	return s.store.ListMessagesByConversation(conversationID)
}

// ListConversations returns the user's conversations, most recently
// updated first.
func (s *Service) ListConversations(userID string, groupOnly bool) ([]models.Conversation, error) {
	return s.store.ListConversationsForUser(userID, groupOnly)
}

// DeleteDirect removes a one-to-one conversation and its messages. Any
// member of the pair may do it.
func (s *Service) DeleteDirect(conversationID, actorID string) error {
	_, err := s.store.UpdateConversation(conversationID, func(c *models.Conversation) (storage.UpdateOutcome, error) {
		if c.IsGroup {
			return storage.Save, models.Validation("conversation", "not a direct conversation")
		}
		if !c.HasMember(actorID) {
			return storage.Save, models.Authorization("you are not a member of this conversation")
		}
		return storage.Dissolve, nil
	})
	return err
}
