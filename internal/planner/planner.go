// Package planner 定义了与规划器（大语言模型）交互的统一接口。
// 规划器接收系统提示与对话轮次，返回一段自由文本，
// 其中可能嵌入一个 JSON 调用信封，由编排层负责解析。
package planner

import "context"

// Role 表示一条消息在对话中的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是发送给规划器的一条对话消息。
type Message struct {
	Role    Role
	Content string
}

// Request 描述一次规划调用的完整上下文。
type Request struct {
	// System 是系统提示，包含能力目录与行为契约。
	System string
	// Messages 按时间顺序排列的对话轮次，最后一条为最新。
	Messages []Message
}

// Response 是规划器返回的原始输出。
type Response struct {
	Content string
}

// Client 定义调用规划器的统一接口。实现方必须尊重 ctx 取消。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
