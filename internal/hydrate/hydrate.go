// Package hydrate assembles a conversation with its ordered messages and
// participant display data in one read, for initial chat-screen
// hydration.
package hydrate

import (
	"palaver/internal/models"
)

// Store is the read side of the conversation and message stores.
type Store interface {
	GetConversation(id string) (models.Conversation, error)
	ListMessagesByConversation(conversationID string) ([]models.Message, error)
}

// Resolver turns user ids into profiles, all-or-nothing.
type Resolver interface {
	LookupAll(ids []string) (map[string]models.Profile, error)
}

type Hydrator struct {
	store    Store
	resolver Resolver
}

func New(store Store, resolver Resolver) *Hydrator {
	return &Hydrator{store: store, resolver: resolver}
}

// Hydrate returns the conversation shell plus display-enriched members
// and messages as a single consistent snapshot. Members only. A
// referenced user that cannot be resolved fails the whole call; readers
// never observe a message without its sender.
func (h *Hydrator) Hydrate(conversationID, requestingUserID string) (models.HydratedConversation, error) {
	conv, err := h.store.GetConversation(conversationID)
	if err != nil {
		return models.HydratedConversation{}, err
	}
	if !conv.HasMember(requestingUserID) {
		return models.HydratedConversation{}, models.Authorization("you are not a member of this conversation")
	}

	messages, err := h.store.ListMessagesByConversation(conversationID)
	if err != nil {
		return models.HydratedConversation{}, err
	}

	ids := make([]string, 0, len(conv.Members)+2*len(messages))
	ids = append(ids, conv.Members...)
	for _, m := range messages {
		ids = append(ids, m.SenderID)
		if m.ReceiverID != "" {
			ids = append(ids, m.ReceiverID)
		}
	}

	profiles, err := h.resolver.LookupAll(ids)
	if err != nil {
		return models.HydratedConversation{}, err
	}

	out := models.HydratedConversation{
		ID:        conv.ID,
		Name:      conv.Name,
		IsGroup:   conv.IsGroup,
		Admin:     conv.Admin,
		Members:   make([]models.DisplayUser, 0, len(conv.Members)),
		Messages:  make([]models.HydratedMessage, 0, len(messages)),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	for _, id := range conv.Members {
		out.Members = append(out.Members, profiles[id].Display())
	}
	for _, m := range messages {
		hm := models.HydratedMessage{
			ID:        m.ID,
			Seq:       m.Seq,
			Body:      m.Body,
			Kind:      m.Kind,
			Sender:    profiles[m.SenderID].Display(),
			CreatedAt: m.CreatedAt,
		}
		if m.ReceiverID != "" {
			receiver := profiles[m.ReceiverID].Display()
			hm.Receiver = &receiver
		}
		out.Messages = append(out.Messages, hm)
	}
	return out, nil
}
