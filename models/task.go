package models

import "time"

// TaskStatus 任务状态
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// ReplaceTask 一次文本替换任务
type ReplaceTask struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"-"`
	SourceFile  string     `json:"sourceFile"`
	Direction   string     `json:"direction,omitempty"` // 自动检测时在处理后填入
	FitMode     string     `json:"fitMode"`
	Status      TaskStatus `json:"status"`
	Progress    float64    `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorCode   int        `json:"errorCode,omitempty"`
	Pages       int        `json:"pages,omitempty"`
	Degraded    int        `json:"degraded,omitempty"` // 降级事件数
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt time.Time  `json:"completedAt,omitempty"`
	OutputPath  string     `json:"-"`
}

// Done 是否已结束
func (t *ReplaceTask) Done() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// ReplaceRequest 上传表单中的处理参数
type ReplaceRequest struct {
	Direction        string `form:"direction"`
	AutoDetect       bool   `form:"autoDetect"`
	FitMode          string `form:"fitMode"`
	ForceRetranslate bool   `form:"forceRetranslate"` // 忽略已有缓存
	Translations     string `form:"translations"`     // 静态译文 JSON，也可用 translationsFile 上传文件
}
