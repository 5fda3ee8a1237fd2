package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

// envelopePattern 从规划器自由文本中提取 JSON 调用信封。
// 允许一层嵌套对象，足以覆盖 {"tool":..., "args":{...}, "done":...} 的形态。
var envelopePattern = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)

// doneSentinel 是规划器声明任务结束时使用的保留能力名。
const doneSentinel = "done"

// Parsed 是解析一轮规划器输出得到的结果。
type Parsed struct {
	// Found 表示是否提取到一个可执行的调用请求。
	Found bool
	// Done 是规划器在信封中声明的完成标记。
	Done bool
	// Invocation 仅在 Found 为 true 时有效。
	Invocation *capability.Invocation
	// Raw 是被采纳的信封原文，用于写回账本。
	Raw string
}

// Parser 实现每轮至多一个调用的解析纪律。
// strict 模式下同一轮出现多个信封按解析失败处理，
// 默认模式只采纳第一个信封。
type Parser struct {
	strict bool
}

// NewParser 创建解析器。
func NewParser(strict bool) *Parser {
	return &Parser{strict: strict}
}

// Parse 扫描规划器文本并提取调用信封。解析是纯函数，
// 对同一输入重复调用得到相同结果。
func (p *Parser) Parse(text string) (*Parsed, error) {
	matches := envelopePattern.FindAllString(text, 2)
	if len(matches) == 0 {
		// 规划器放弃行动，按任务完成处理。
		return &Parsed{}, nil
	}
	if p.strict && len(matches) > 1 {
		return nil, xerrors.New(xerrors.CodeMultipleInvocations,
			"同一轮出现多个调用信封")
	}

	var envelope struct {
		Tool *string        `json:"tool"`
		Args map[string]any `json:"args"`
		Done *bool          `json:"done"`
	}
	raw := matches[0]
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeMalformedArguments, err,
			fmt.Sprintf("调用信封不是合法 JSON: %s", truncateForLog(raw)))
	}
	if envelope.Tool == nil || envelope.Done == nil {
		// 缺少必要字段说明规划器不再选择能力，按完成处理。
		return &Parsed{Done: true}, nil
	}

	name := strings.TrimSpace(*envelope.Tool)
	if name == "" || strings.EqualFold(name, doneSentinel) {
		return &Parsed{Done: true}, nil
	}

	args := envelope.Args
	if args == nil {
		args = map[string]any{}
	}

	return &Parsed{
		Found: true,
		Done:  *envelope.Done,
		Invocation: &capability.Invocation{
			Capability: name,
			Args:       args,
		},
		Raw: raw,
	}, nil
}

func truncateForLog(text string) string {
	const limit = 120
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
