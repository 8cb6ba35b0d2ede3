package dto

// ParseResponse 提交解析任务的响应
type ParseResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

// JobStatusResponse 任务状态快照
type JobStatusResponse struct {
	JobID          int64  `json:"job_id"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	Message        string `json:"message,omitempty"`
	ResultJSON     string `json:"result_json,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
}

// ExamListItem 解析历史列表项
type ExamListItem struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}
