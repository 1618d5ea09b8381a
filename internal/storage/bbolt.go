package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"palaver/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketDirectIndex   = []byte("direct_index")
	bucketProfiles      = []byte("profiles")
)

// UpdateOutcome tells the store what to do with a conversation after an
// atomic read-modify-write callback.
type UpdateOutcome int

const (
	// Save persists the mutated conversation.
	Save UpdateOutcome = iota
	// Dissolve deletes the conversation and cascades its messages away
	// within the same transaction.
	Dissolve
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketMessages, bucketDirectIndex, bucketProfiles} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// pairKey is the canonical unordered-pair identifier for a direct
// conversation. Both member orders map to the same key, which is what
// makes FindOrCreateDirect collision-free.
func pairKey(userA, userB string) []byte {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return []byte(strings.Join(ids, "|"))
}

// wrapStore passes typed domain errors through unchanged and reports
// anything else as a dependency failure.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	var domain *models.Error
	if errors.As(err, &domain) {
		return err
	}
	return models.Dependency(err)
}

// FindOrCreateDirect returns the live direct conversation for the pair,
// creating it if absent. The lookup and create run in one write
// transaction keyed by the canonical pair identifier, so concurrent
// identical calls cannot create two conversations.
func (s *BboltStorage) FindOrCreateDirect(userA, userB string) (models.Conversation, bool, error) {
	if userA == "" || userB == "" {
		return models.Conversation{}, false, models.Validation("members", "both user ids are required")
	}
	if userA == userB {
		return models.Conversation{}, false, models.Validation("members", "cannot open a conversation with yourself")
	}

	var conv models.Conversation
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketDirectIndex)
		key := pairKey(userA, userB)

		if id := idx.Get(key); id != nil {
			existing, err := getConversation(tx, string(id))
			if err != nil {
				return err
			}
			conv = existing
			return nil
		}

		now := s.now().UnixMilli()
		conv = models.Conversation{
			ID:        uuid.NewString(),
			Name:      models.DirectConversationName,
			IsGroup:   false,
			Members:   []string{userA, userB},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := putConversation(tx, conv); err != nil {
			return err
		}
		if err := idx.Put(key, []byte(conv.ID)); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return models.Conversation{}, false, wrapStore(err)
	}
	return conv, created, nil
}

// CreateGroup creates a group conversation with the initiator as admin.
// The initiator is folded into the member set if absent. A live group
// with the same name and an identical member set is a conflict.
func (s *BboltStorage) CreateGroup(name, initiatorID string, memberIDs []string) (models.Conversation, error) {
	if name == "" {
		return models.Conversation{}, models.Validation("name", "group name is required")
	}
	if initiatorID == "" {
		return models.Conversation{}, models.Validation("initiator", "initiator id is required")
	}

	members := dedup(append([]string{}, memberIDs...))
	if !contains(members, initiatorID) {
		members = append(members, initiatorID)
	}
	if len(members) < 2 {
		return models.Conversation{}, models.Validation("members", "a group needs at least 2 distinct members")
	}

	var conv models.Conversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		dup := false
		err := b.ForEach(func(k, v []byte) error {
			var dbc DBConversation
			if err := dbc.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbc.IsGroup && dbc.Name == name && sameMemberSet(dbc.Members, members) {
				dup = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if dup {
			return models.Conflict("a group with the same name and members already exists")
		}

		now := s.now().UnixMilli()
		conv = models.Conversation{
			ID:        uuid.NewString(),
			Name:      name,
			IsGroup:   true,
			Admin:     initiatorID,
			Members:   members,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return putConversation(tx, conv)
	})
	if err != nil {
		return models.Conversation{}, wrapStore(err)
	}
	return conv, nil
}

func (s *BboltStorage) GetConversation(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		c, err := getConversation(tx, id)
		if err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return models.Conversation{}, wrapStore(err)
	}
	return conv, nil
}

// ListConversationsForUser returns the user's conversations, most
// recently updated first.
func (s *BboltStorage) ListConversationsForUser(userID string, groupOnly bool) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		return b.ForEach(func(k, v []byte) error {
			var dbc DBConversation
			if err := dbc.UnmarshalBinary(v); err != nil {
				return err
			}
			if groupOnly && !dbc.IsGroup {
				return nil
			}
			conv := fromDBConversation(dbc)
			if conv.HasMember(userID) {
				convs = append(convs, conv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapStore(err)
	}

	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt != convs[j].UpdatedAt {
			return convs[i].UpdatedAt > convs[j].UpdatedAt
		}
		return convs[i].ID < convs[j].ID
	})
	return convs, nil
}

// SetLastMessage points the conversation at msg. The message must belong
// to the conversation and actually exist in its message bucket.
func (s *BboltStorage) SetLastMessage(conversationID string, msg models.Message) error {
	if msg.ConversationID != conversationID {
		return models.Validation("lastMessage", "message belongs to a different conversation")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		conv, err := getConversation(tx, conversationID)
		if err != nil {
			return err
		}

		stored, err := getMessage(tx, conversationID, msg.Seq)
		if err != nil {
			return err
		}
		if stored.ID != msg.ID {
			return models.Validation("lastMessage", "message does not match the stored record")
		}

		conv.LastMessageID = msg.ID
		conv.UpdatedAt = s.now().UnixMilli()
		return putConversation(tx, conv)
	})
	return wrapStore(err)
}

// UpdateConversation applies fn to the conversation under a write
// transaction. Concurrent updates to the same record serialize here, so
// no membership change can be lost. A Dissolve outcome deletes the
// conversation and its messages in the same transaction.
func (s *BboltStorage) UpdateConversation(id string, fn func(*models.Conversation) (UpdateOutcome, error)) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		c, err := getConversation(tx, id)
		if err != nil {
			return err
		}

		outcome, err := fn(&c)
		if err != nil {
			return err
		}
		conv = c

		switch outcome {
		case Dissolve:
			return deleteConversation(tx, c, true)
		default:
			c.UpdatedAt = s.now().UnixMilli()
			conv = c
			return putConversation(tx, c)
		}
	})
	if err != nil {
		return models.Conversation{}, wrapStore(err)
	}
	return conv, nil
}

// DeleteConversation removes the conversation record only. Cascading
// message deletion is the caller's responsibility, which keeps the two
// stores independently testable and lets the lifecycle manager control
// ordering.
func (s *BboltStorage) DeleteConversation(id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		conv, err := getConversation(tx, id)
		if err != nil {
			return err
		}
		return deleteConversation(tx, conv, false)
	})
	return wrapStore(err)
}

// AppendMessage validates, normalizes, and persists a message, assigning
// the per-conversation sequence number that is the stable message order.
func (s *BboltStorage) AppendMessage(senderID, conversationID, body string, kind models.MessageKind, receiverID string) (models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, models.Validation("body", "message body must not be empty")
	}

	switch kind {
	case models.MessageKindIndividual:
		if receiverID == "" {
			return models.Message{}, models.Validation("receiverId", "individual messages need a receiver")
		}
	case models.MessageKindGroup:
		// Invariant strip: group messages carry no receiver.
		receiverID = ""
	default:
		return models.Message{}, models.Validation("kind", "unknown message kind")
	}

	var msg models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		conv, err := getConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasMember(senderID) {
			return models.Authorization("sender is not a member of the conversation")
		}
		if kind == models.MessageKindIndividual && conv.OtherMember(senderID) != receiverID {
			return models.Validation("receiverId", "receiver must be the other member of the conversation")
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate message sequence: %w", err)
		}

		msg = models.Message{
			ID:             uuid.NewString(),
			Seq:            int64(seq),
			SenderID:       senderID,
			ReceiverID:     receiverID,
			ConversationID: conversationID,
			Body:           body,
			Kind:           kind,
			CreatedAt:      s.now().UnixMilli(),
		}

		dbMsg := toDBMessage(msg)
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := chatBucket.Put(dbMsg.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		conv.UpdatedAt = msg.CreatedAt
		return putConversation(tx, conv)
	})
	if err != nil {
		return models.Message{}, wrapStore(err)
	}
	return msg, nil
}

// ListMessagesByConversation returns all messages in ascending sequence
// order, which is ascending creation time with a stable tie-break.
func (s *BboltStorage) ListMessagesByConversation(conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if chatBucket == nil {
			return nil // no messages yet
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, fromDBMessage(dbMsg))
			return nil
		})
	})
	if err != nil {
		return nil, wrapStore(err)
	}
	return messages, nil
}

// DeleteMessagesByConversation drops the conversation's message bucket.
// Used only by cascading deletes.
func (s *BboltStorage) DeleteMessagesByConversation(conversationID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return deleteMessages(tx, conversationID)
	})
	return wrapStore(err)
}

// UpsertProfile stores a directory profile synced from the auth
// collaborator.
func (s *BboltStorage) UpsertProfile(p models.Profile) error {
	if p.ID == "" {
		return models.Validation("id", "profile id is required")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbp := DBProfile{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			AvatarRef:   p.AvatarRef,
		}
		data, err := dbp.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProfiles).Put(dbp.Key(), data)
	})
	return wrapStore(err)
}

func (s *BboltStorage) GetProfile(id string) (models.Profile, error) {
	var p models.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(id))
		if data == nil {
			return models.NotFound("user")
		}
		var dbp DBProfile
		if err := dbp.UnmarshalBinary(data); err != nil {
			return err
		}
		p = models.Profile{
			ID:          dbp.ID,
			DisplayName: dbp.DisplayName,
			Email:       dbp.Email,
			AvatarRef:   dbp.AvatarRef,
		}
		return nil
	})
	if err != nil {
		return models.Profile{}, wrapStore(err)
	}
	return p, nil
}

func (s *BboltStorage) ListProfiles() ([]models.Profile, error) {
	var profiles []models.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProfiles).ForEach(func(k, v []byte) error {
			var dbp DBProfile
			if err := dbp.UnmarshalBinary(v); err != nil {
				return err
			}
			profiles = append(profiles, models.Profile{
				ID:          dbp.ID,
				DisplayName: dbp.DisplayName,
				Email:       dbp.Email,
				AvatarRef:   dbp.AvatarRef,
			})
			return nil
		})
	})
	if err != nil {
		return nil, wrapStore(err)
	}
	return profiles, nil
}

// Transaction-scoped helpers.

func getConversation(tx *bbolt.Tx, id string) (models.Conversation, error) {
	data := tx.Bucket(bucketConversations).Get([]byte(id))
	if data == nil {
		return models.Conversation{}, models.NotFound("conversation")
	}
	var dbc DBConversation
	if err := dbc.UnmarshalBinary(data); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return fromDBConversation(dbc), nil
}

func putConversation(tx *bbolt.Tx, conv models.Conversation) error {
	dbc := DBConversation{
		ID:            conv.ID,
		Name:          conv.Name,
		IsGroup:       conv.IsGroup,
		Admin:         conv.Admin,
		Members:       conv.Members,
		LastMessageID: conv.LastMessageID,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
	data, err := dbc.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return tx.Bucket(bucketConversations).Put(dbc.Key(), data)
}

func getMessage(tx *bbolt.Tx, conversationID string, seq int64) (models.Message, error) {
	chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
	if chatBucket == nil {
		return models.Message{}, models.NotFound("message")
	}
	probe := DBMessage{Seq: seq}
	data := chatBucket.Get(probe.Key())
	if data == nil {
		return models.Message{}, models.NotFound("message")
	}
	var dbMsg DBMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return models.Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return fromDBMessage(dbMsg), nil
}

func deleteMessages(tx *bbolt.Tx, conversationID string) error {
	b := tx.Bucket(bucketMessages)
	if b.Bucket([]byte(conversationID)) == nil {
		return nil // nothing to delete
	}
	return b.DeleteBucket([]byte(conversationID))
}

func deleteConversation(tx *bbolt.Tx, conv models.Conversation, cascade bool) error {
	if cascade {
		if err := deleteMessages(tx, conv.ID); err != nil {
			return err
		}
	}
	if !conv.IsGroup && len(conv.Members) == 2 {
		if err := tx.Bucket(bucketDirectIndex).Delete(pairKey(conv.Members[0], conv.Members[1])); err != nil {
			return err
		}
	}
	return tx.Bucket(bucketConversations).Delete([]byte(conv.ID))
}

func fromDBConversation(dbc DBConversation) models.Conversation {
	return models.Conversation{
		ID:            dbc.ID,
		Name:          dbc.Name,
		IsGroup:       dbc.IsGroup,
		Admin:         dbc.Admin,
		Members:       dbc.Members,
		LastMessageID: dbc.LastMessageID,
		CreatedAt:     dbc.CreatedAt,
		UpdatedAt:     dbc.UpdatedAt,
	}
}

func toDBMessage(m models.Message) DBMessage {
	return DBMessage{
		ID:             m.ID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		ConversationID: m.ConversationID,
		Body:           m.Body,
		Kind:           string(m.Kind),
		CreatedAt:      m.CreatedAt,
	}
}

func fromDBMessage(dbm DBMessage) models.Message {
	return models.Message{
		ID:             dbm.ID,
		Seq:            dbm.Seq,
		SenderID:       dbm.SenderID,
		ReceiverID:     dbm.ReceiverID,
		ConversationID: dbm.ConversationID,
		Body:           dbm.Body,
		Kind:           models.MessageKind(dbm.Kind),
		CreatedAt:      dbm.CreatedAt,
	}
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sameMemberSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
