package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBConversation struct {
	ID            string   `msgpack:"id"`
	Name          string   `msgpack:"name"`
	IsGroup       bool     `msgpack:"isGroup"`
	Admin         string   `msgpack:"admin"`
	Members       []string `msgpack:"members"`
	LastMessageID string   `msgpack:"lastMessageId"`
	CreatedAt     int64    `msgpack:"createdAt"`
	UpdatedAt     int64    `msgpack:"updatedAt"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID             string `msgpack:"id"`
	Seq            int64  `msgpack:"seq"`
	SenderID       string `msgpack:"senderId"`
	ReceiverID     string `msgpack:"receiverId"`
	ConversationID string `msgpack:"conversationId"`
	Body           string `msgpack:"body"`
	Kind           string `msgpack:"kind"`
	CreatedAt      int64  `msgpack:"createdAt"`
}

// Key orders messages by sequence number within their conversation bucket.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.Seq))
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBProfile struct {
	ID          string `msgpack:"id"`
	DisplayName string `msgpack:"displayName"`
	Email       string `msgpack:"email"`
	AvatarRef   string `msgpack:"avatarRef"`
}

func (p *DBProfile) Key() []byte {
	return []byte(p.ID)
}

func (p *DBProfile) MarshalBinary() (data []byte, err error) {
	type alias DBProfile
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProfile) UnmarshalBinary(data []byte) error {
	type alias DBProfile
	return msgpack.Unmarshal(data, (*alias)(p))
}
