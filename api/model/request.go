package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页的起始偏移
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// ChatMessage 对话历史中的一条消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Message string `json:"message,omitempty"` // 旧版客户端使用message字段
}

// Text 返回消息内容，content为空时使用message
func (m ChatMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Message
}

// ChatRequest 对话请求，最后一条消息为当前问题
type ChatRequest struct {
	History []ChatMessage `json:"history" binding:"required"`
}

// ResetRequest 重置索引请求
type ResetRequest struct {
	PurgeDocuments bool `json:"purge_documents"` // 是否同时删除文档目录中的文件
}

// TaskRequest 任务查询请求
type TaskRequest struct {
	ID string `uri:"id" binding:"required,uuid"` // 任务ID
}
