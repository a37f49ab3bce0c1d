package models

import "time"

// UploadState 定义了上传作业状态机的各个状态。
// 状态只能向前推进，唯一的例外是失败后经重试回到 Pending。
type UploadState string

const (
	UploadStatePending   UploadState = "pending"
	UploadStateUploading UploadState = "uploading"
	UploadStateUploaded  UploadState = "uploaded"
	UploadStateCleanedUp UploadState = "cleaned_up"
	UploadStateFailed    UploadState = "failed"
)

// uploadTransitions 列出了每个状态允许进入的下一个状态。
var uploadTransitions = map[UploadState][]UploadState{
	UploadStatePending:   {UploadStateUploading},
	UploadStateUploading: {UploadStateUploaded, UploadStateFailed},
	UploadStateUploaded:  {UploadStateCleanedUp},
	UploadStateFailed:    {UploadStatePending},
}

// CanTransition 报告从当前状态到 next 的转移是否合法。
func (s UploadState) CanTransition(next UploadState) bool {
	for _, allowed := range uploadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// UploadJobState 记录单个音频上传作业的进度。
// 不变式：在到达 Uploaded 之前绝不会进入 CleanedUp。
type UploadJobState struct {
	RequestID string      `bson:"_id" json:"request_id"`
	UserID    string      `bson:"user_id" json:"user_id"`
	LocalPath string      `bson:"local_path" json:"local_path"`
	RemoteURL string      `bson:"remote_url,omitempty" json:"remote_url,omitempty"`
	State     UploadState `bson:"state" json:"state"`
	Attempt   int         `bson:"attempt" json:"attempt"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"`
}
