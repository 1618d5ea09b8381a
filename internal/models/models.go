package models

// MessageKind distinguishes one-to-one messages from group messages.
type MessageKind string

const (
	MessageKindIndividual MessageKind = "individual"
	MessageKindGroup      MessageKind = "group"
)

// DirectConversationName is the placeholder label used for one-to-one
// conversations, which have no user-chosen name.
const DirectConversationName = "One-to-One Chat"

// Conversation represents a persistent thread, either a two-member direct
// chat or a multi-member admin-governed group.
type Conversation struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
	// Admin is set only for groups and is always one of Members.
	Admin string `json:"admin,omitempty"`
	// Members is an ordered set: unique, insertion order preserved.
	// The order is the admin succession order.
	Members       []string `json:"members"`
	LastMessageID string   `json:"lastMessageId,omitempty"`
	CreatedAt     int64    `json:"createdAt"` // Unix timestamp (milliseconds)
	UpdatedAt     int64    `json:"updatedAt"` // Unix timestamp (milliseconds)
}

// HasMember reports whether userID is in the conversation's member set.
func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the member of a two-member conversation that is not
// userID, or an empty string if there is no such member.
func (c *Conversation) OtherMember(userID string) string {
	if len(c.Members) != 2 {
		return ""
	}
	switch userID {
	case c.Members[0]:
		return c.Members[1]
	case c.Members[1]:
		return c.Members[0]
	}
	return ""
}

// Message is immutable once created. Seq is assigned by the store and is
// the stable total order within a conversation; CreatedAt alone is not
// unique under burst traffic.
type Message struct {
	ID             string      `json:"id"`
	Seq            int64       `json:"seq"`
	SenderID       string      `json:"senderId"`
	ReceiverID     string      `json:"receiverId,omitempty"` // individual kind only
	ConversationID string      `json:"conversationId"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	CreatedAt      int64       `json:"createdAt"` // Unix timestamp (milliseconds)
}

// Profile is the directory mirror of a user owned by the auth
// collaborator. The core never stores credentials.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// DisplayUser is the profile shape exposed to other members.
// Email is deliberately absent.
type DisplayUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Display strips a profile down to the member-visible shape.
func (p Profile) Display() DisplayUser {
	return DisplayUser{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
	}
}

// HydratedMessage is a message with its participants resolved to display
// records.
type HydratedMessage struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	Body      string       `json:"body"`
	Kind      MessageKind  `json:"kind"`
	Sender    DisplayUser  `json:"sender"`
	Receiver  *DisplayUser `json:"receiver,omitempty"`
	CreatedAt int64        `json:"createdAt"`
}

// HydratedConversation is the single-read composition served for chat
// screen hydration: the conversation shell plus enriched members and
// enriched, ordered messages.
type HydratedConversation struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	IsGroup   bool              `json:"isGroup"`
	Admin     string            `json:"admin,omitempty"`
	Members   []DisplayUser     `json:"members"`
	Messages  []HydratedMessage `json:"messages"`
	CreatedAt int64             `json:"createdAt"`
	UpdatedAt int64             `json:"updatedAt"`
}

// APIResponse is the envelope for REST responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ClientEvent represents an inbound websocket event.
type ClientEvent struct {
	Type           ClientEventType `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	ReceiverID     string          `json:"receiverId,omitempty"`
	Body           string          `json:"body,omitempty"`
}

// ServerEvent represents an outbound websocket event.
type ServerEvent struct {
	Type           ServerEventType `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	UserIDs        []string        `json:"userIds,omitempty"`
	Message        *Message        `json:"message,omitempty"`
}

type ClientEventType string

const (
	ClientEventSetup       ClientEventType = "setup"
	ClientEventJoinRoom    ClientEventType = "joinRoom"
	ClientEventSendMessage ClientEventType = "sendMessage"
	ClientEventTyping      ClientEventType = "typing"
	ClientEventStopTyping  ClientEventType = "stopTyping"
)

type ServerEventType string

const (
	ServerEventConnected   ServerEventType = "connected"
	ServerEventOnlineUsers ServerEventType = "onlineUsers"
	ServerEventNewMessage  ServerEventType = "newMessage"
	ServerEventTyping      ServerEventType = "typing"
	ServerEventStopTyping  ServerEventType = "stopTyping"
)
