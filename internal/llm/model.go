package llm

import (
	"strings"
	"time"
)

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Valid 是否为对话历史中允许出现的角色
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole 解析客户端传入的角色名，大小写不敏感，bot等别名视为助手
// 无法识别时原样返回，由Valid判断
func ParseRole(role string) MessageRole {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "bot", "ai", "model":
		return RoleAssistant
	}
	return MessageRole(r)
}

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 统一的响应结构
type Response struct {
	Text         string    // 生成的文本
	TokenCount   int       // 使用的token数
	ModelName    string    // 使用的模型名称
	FinishReason string    // 结束原因
	FinishTime   time.Time // 完成时间
}
