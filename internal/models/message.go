package models

import "time"

// MessageType 定义了消息记录的发送方类型。
type MessageType string

const (
	MessageTypeUser MessageType = "user" // 用户发送的消息
	MessageTypeAI   MessageType = "ai"   // AI 生成的回复
)

// Message 代表一条持久化的会话消息。
// 每轮成功的对话原子地写入一对消息记录 (user + ai)，
// 两条记录共享同一个 RequestID 和 ThreadID。写入后永不修改。
type Message struct {
	ID        string      `bson:"_id" json:"id"`
	ThreadID  string      `bson:"thread_id" json:"thread_id"`
	UserID    string      `bson:"user_id" json:"user_id"`
	Type      MessageType `bson:"type" json:"type"`
	Content   string      `bson:"content" json:"content"`
	RequestID string      `bson:"request_id" json:"request_id"`
	AudioURL  string      `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// Thread 是消息的逻辑分组，生命周期与客户端会话对应。
// 首轮对话时若不存在则隐式创建。
type Thread struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
