package agent

import (
	"fmt"
	"strings"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
	"github.com/mgarg123/ai-single-file-agents/internal/hints"
	"github.com/mgarg123/ai-single-file-agents/internal/planner"
)

// promptCompiler 把能力目录、行为契约与账本快照编译成一次规划请求。
// 编译过程没有副作用，同一输入产出同一请求。
type promptCompiler struct {
	registry *capability.Registry
	hints    hints.Provider
	// retainTurns 限制随请求发送的轮次数量，0 表示不限制。
	// 保留策略：始终保留首条用户指令，其余取最近的轮次。
	retainTurns int
}

func newPromptCompiler(registry *capability.Registry, provider hints.Provider, retainTurns int) *promptCompiler {
	return &promptCompiler{
		registry:    registry,
		hints:       provider,
		retainTurns: retainTurns,
	}
}

// Compile 生成完整的规划请求。
func (c *promptCompiler) Compile(instruction string, ledger *Ledger) planner.Request {
	return planner.Request{
		System:   c.systemPrompt(instruction),
		Messages: c.messages(ledger),
	}
}

func (c *promptCompiler) systemPrompt(instruction string) string {
	var b strings.Builder
	b.WriteString("You are an automation agent. You complete the user's instruction by invoking the capabilities listed below, exactly one per turn.\n\n")

	b.WriteString("Capabilities:\n")
	for _, cap := range c.registry.Catalog() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", cap.Signature(), cap.Description))
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. Respond with exactly one JSON object of the form {\"tool\": <name>, \"args\": {...}, \"done\": <bool>} and nothing else. Never emit more than one JSON object per turn.\n")
	b.WriteString("2. Before acting, count the operations the instruction implies: split it on connectives such as \"then\", \"after\" and \"next\", and plan one capability call per operation, in order.\n")
	b.WriteString("3. Set \"done\" to true only on the call that completes the final operation.\n")
	b.WriteString("4. If an observation says an operation was cancelled, do not repeat it; continue with the next operation.\n")
	b.WriteString("5. If an observation says a target was not found, do not retry the same capability with the same arguments.\n")
	b.WriteString("6. If there is nothing left to do, respond with {\"tool\": \"done\", \"args\": {}, \"done\": true}.\n")

	if c.hints != nil {
		if snippets := c.hints.Query(instruction); len(snippets) > 0 {
			b.WriteString("\nGuidance:\n")
			for _, s := range snippets {
				b.WriteString(fmt.Sprintf("- %s: %s\n", strings.TrimSpace(s.Title), strings.TrimSpace(s.Content)))
			}
		}
	}
	return b.String()
}

func (c *promptCompiler) messages(ledger *Ledger) []planner.Message {
	turns := ledger.Snapshot()
	if c.retainTurns > 0 && len(turns) > c.retainTurns {
		// 最近优先，但首条用户指令始终保留。
		head := turns[0]
		tail := turns[len(turns)-(c.retainTurns-1):]
		turns = append([]Turn{head}, tail...)
	}

	messages := make([]planner.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case TurnPlanner:
			messages = append(messages, planner.Message{
				Role:    planner.RoleAssistant,
				Content: turn.Content,
			})
		case TurnObservation:
			messages = append(messages, planner.Message{
				Role:    planner.RoleUser,
				Content: "Observation: " + turn.Content,
			})
		default:
			messages = append(messages, planner.Message{
				Role:    planner.RoleUser,
				Content: turn.Content,
			})
		}
	}
	return messages
}
