// Package group implements the group conversation lifecycle: creation,
// membership changes, admin succession, and dissolution.
package group

import (
	"log/slog"

	"palaver/internal/content"
	"palaver/internal/models"
	"palaver/internal/storage"

	"github.com/samber/lo"
)

// Store is the conversation persistence the manager drives. Every
// mutation goes through UpdateConversation so membership changes on the
// same record serialize instead of overwriting each other.
type Store interface {
	CreateGroup(name, initiatorID string, memberIDs []string) (models.Conversation, error)
	GetConversation(id string) (models.Conversation, error)
	ListConversationsForUser(userID string, groupOnly bool) ([]models.Conversation, error)
	UpdateConversation(id string, fn func(*models.Conversation) (storage.UpdateOutcome, error)) (models.Conversation, error)
}

type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create validates and creates a group with the initiator as admin.
func (m *Manager) Create(name, initiatorID string, memberIDs []string) (models.Conversation, error) {
	name = content.SanitizeName(name)
	conv, err := m.store.CreateGroup(name, initiatorID, memberIDs)
	if err != nil {
		return models.Conversation{}, err
	}
	slog.Info("group created", "conversation_id", conv.ID, "admin", conv.Admin, "members", len(conv.Members))
	return conv, nil
}

// Get returns a group conversation.
func (m *Manager) Get(conversationID string) (models.Conversation, error) {
	conv, err := m.store.GetConversation(conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.IsGroup {
		return models.Conversation{}, models.NotFound("group")
	}
	return conv, nil
}

// ListForUser returns the user's groups, most recently updated first.
func (m *Manager) ListForUser(userID string) ([]models.Conversation, error) {
	return m.store.ListConversationsForUser(userID, true)
}

// AddMembers appends the given users to the group. Admin only. Users
// already present are silently dropped, not an error.
func (m *Manager) AddMembers(conversationID, actorID string, newMembers []string) (models.Conversation, error) {
	if len(newMembers) == 0 {
		return models.Conversation{}, models.Validation("members", "at least one member is required")
	}
	return m.store.UpdateConversation(conversationID, func(c *models.Conversation) (storage.UpdateOutcome, error) {
		if err := requireAdmin(c, actorID, "add members to"); err != nil {
			return storage.Save, err
		}
		toAdd := lo.Filter(lo.Uniq(newMembers), func(id string, _ int) bool {
			return id != "" && !c.HasMember(id)
		})
		c.Members = append(c.Members, toAdd...)
		return storage.Save, nil
	})
}

// RemoveMembers removes any of the targets that are present. Admin only.
// Removing the admin triggers the same succession rule as Leave. An empty
// target list is rejected; the original system accepted it by accident
// and it was never meaningful.
func (m *Manager) RemoveMembers(conversationID, actorID string, targets []string) (models.Conversation, bool, error) {
	if len(targets) == 0 {
		return models.Conversation{}, false, models.Validation("members", "at least one member is required")
	}
	dissolved := false
	conv, err := m.store.UpdateConversation(conversationID, func(c *models.Conversation) (storage.UpdateOutcome, error) {
		if err := requireAdmin(c, actorID, "remove members from"); err != nil {
			return storage.Save, err
		}
		c.Members = lo.Without(c.Members, targets...)
		outcome := m.succeedAdmin(c)
		dissolved = outcome == storage.Dissolve
		return outcome, nil
	})
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, dissolved, nil
}

// Leave removes the actor from the group. Anyone may leave; no admin
// check. If the admin leaves, the first remaining member in insertion
// order becomes the new admin. If nobody remains, the group dissolves and
// its messages are cascade-deleted.
func (m *Manager) Leave(conversationID, actorID string) (models.Conversation, bool, error) {
	dissolved := false
	conv, err := m.store.UpdateConversation(conversationID, func(c *models.Conversation) (storage.UpdateOutcome, error) {
		if !c.IsGroup {
			return storage.Save, models.Validation("conversation", "not a group conversation")
		}
		if !c.HasMember(actorID) {
			return storage.Save, models.Authorization("you are not a member of this group")
		}
		c.Members = lo.Without(c.Members, actorID)
		outcome := m.succeedAdmin(c)
		dissolved = outcome == storage.Dissolve
		return outcome, nil
	})
	if err != nil {
		return models.Conversation{}, false, err
	}
	if dissolved {
		slog.Info("group dissolved, last member left", "conversation_id", conversationID)
	}
	return conv, dissolved, nil
}

// Delete removes the group and cascade-deletes its messages. Admin only.
func (m *Manager) Delete(conversationID, actorID string) error {
	_, err := m.store.UpdateConversation(conversationID, func(c *models.Conversation) (storage.UpdateOutcome, error) {
		if err := requireAdmin(c, actorID, "delete"); err != nil {
			return storage.Save, err
		}
		return storage.Dissolve, nil
	})
	return err
}

// succeedAdmin applies the admin succession transition after the member
// set changed: if the admin is gone, ownership passes to the first
// remaining member in insertion order, deterministically. An empty member
// set dissolves the group.
func (m *Manager) succeedAdmin(c *models.Conversation) storage.UpdateOutcome {
	if len(c.Members) == 0 {
		return storage.Dissolve
	}
	if !c.HasMember(c.Admin) {
		slog.Info("admin succession", "conversation_id", c.ID, "old_admin", c.Admin, "new_admin", c.Members[0])
		c.Admin = c.Members[0]
	}
	return storage.Save
}

func requireAdmin(c *models.Conversation, actorID, action string) error {
	if !c.IsGroup {
		return models.Validation("conversation", "not a group conversation")
	}
	if c.Admin != actorID {
		return models.Authorization("only the group admin can " + action + " this group")
	}
	return nil
}
