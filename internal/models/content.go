package models

import "time"

// SpeakerRole 定义了对话内容的生产者角色。
type SpeakerRole string

const (
	SpeakerUser  SpeakerRole = "user"  // 用户角色
	SpeakerModel SpeakerRole = "model" // 模型角色
)

// ChatTurn 是上下文窗口中的一轮对话。
type ChatTurn struct {
	Role SpeakerRole `json:"role"`
	Text string      `json:"text"`
}

// GenerateContentRequest 定义了生成内容的请求结构。
// History 为按时间从旧到新排列的上下文窗口，Message 为本轮用户输入。
type GenerateContentRequest struct {
	History []ChatTurn `json:"history,omitempty"`
	Message string     `json:"message"`
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Text         string    `json:"text"`
	ModelVersion string    `json:"modelVersion,omitempty"`
	CreateTime   time.Time `json:"createTime,omitempty"`
}
