package models

import (
	"encoding/json"
	"time"
)

// TaskKind 定义了后台任务的种类。
type TaskKind string

const (
	TaskKindChatTurn       TaskKind = "chat_turn"       // 对话轮次任务
	TaskKindAudioUpload    TaskKind = "audio_upload"    // 音频上传任务
	TaskKindRetentionSweep TaskKind = "retention_sweep" // 过期录音清理任务
)

// TaskEnvelope 是进入消息队列的工作单元。
// 除 Attempt 字段（由重试控制器递增）外，创建后不可变。
type TaskEnvelope struct {
	ID        string          `json:"id"`                  // 任务唯一ID (UUID)
	Kind      TaskKind        `json:"kind"`                // 任务种类，用于分发
	Payload   json.RawMessage `json:"payload"`             // 任务载荷，按 Kind 解释
	UserID    string          `json:"user_id"`             // 提交任务的用户ID
	RequestID string          `json:"request_id"`          // 单次请求的唯一标识
	ThreadID  string          `json:"thread_id,omitempty"` // 会话线程ID (仅对话任务)
	Attempt   int             `json:"attempt"`             // 当前重试次数，从 0 开始
	CreatedAt time.Time       `json:"created_at"`          // 任务创建时间
}

// ChatTurnPayload 是 chat_turn 任务的载荷。
type ChatTurnPayload struct {
	Message string `json:"message"`
}

// AudioUploadPayload 是 audio_upload 任务的载荷。
// AudioBase64 与 LocalPath 二选一：网关接收 base64 数据，
// 也允许 worker 直接读取本地文件。
type AudioUploadPayload struct {
	AudioBase64 string `json:"audio_base64,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
}

// RetentionSweepPayload 是 retention_sweep 任务的载荷。
type RetentionSweepPayload struct {
	MaxAgeDays int `json:"max_age_days"`
}
