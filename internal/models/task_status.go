package models

import "time"

// TaskState 定义了任务状态记录的几种可能状态。
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// Terminal 报告该状态是否为终态。
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// TaskResult 是所有任务统一的结果格式。
// 调用方无需区分"从未执行"和"执行后失败"，两者都以 Success=false 表示。
type TaskResult struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`       // 对话任务：AI 回复文本
	URL          string    `json:"url,omitempty"`           // 上传任务：远端对象 URL
	Filename     string    `json:"filename,omitempty"`      // 上传任务：对象键名
	DeletedFiles []string  `json:"deleted_files,omitempty"` // 清理任务：已删除的对象键名
	Error        string    `json:"error,omitempty"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// TaskStatusRecord 是 TaskEnvelope 执行结果的可轮询投影。
// 由 worker 写入 Redis，网关的轮询端点与推送通道读取。
// Attempt 记录最近一次已持久化的重试计数，worker 崩溃重投递后从这里恢复。
type TaskStatusRecord struct {
	TaskID  string      `json:"task_id"`
	State   TaskState   `json:"state"`
	Attempt int         `json:"attempt,omitempty"`
	Result  *TaskResult `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}
