package models

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"` // 错误分类，例如 "backend_unavailable", "parse_error"
	Stack   string `json:"stack,omitempty"`
}
