// Package capability 定义了智能体可调用的外部操作及其注册表。
// 每个 Capability 以显式描述符的形式声明名称、参数契约与执行函数，
// 注册表在进程启动时构建一次，之后保持不可变。
package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

// Param 描述一个参数的契约。
type Param struct {
	Name     string
	Type     string
	Required bool
	Default  any
}

// Env 携带执行期注入的端口。确认回调由 Executor 注入，
// 能力本身不直接读取标准输入。
type Env struct {
	// Confirm 在执行破坏性操作前征求操作者同意。
	Confirm func(prompt string) bool
	// WorkDir 是能力解析相对路径时的基准目录。
	WorkDir string
}

// InvokeFunc 执行能力并返回摘要文本与可选的结构化结果。
type InvokeFunc func(ctx context.Context, args map[string]any, env Env) (string, any, error)

// Capability 描述一个可被规划器选择的外部操作。
type Capability struct {
	Name        string
	Description string
	Params      []Param
	Invoke      InvokeFunc
}

// Signature 以 name(param: type = default, ...) 的形式渲染能力签名，
// 用于生成规划器可读的目录条目。
func (c Capability) Signature() string {
	parts := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		s := fmt.Sprintf("%s: %s", p.Name, p.Type)
		if !p.Required && p.Default != nil {
			s += fmt.Sprintf(" = %v", p.Default)
		}
		parts = append(parts, s)
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// Registry 持有名字到能力的映射，注册顺序决定目录渲染顺序。
type Registry struct {
	order []string
	byName map[string]Capability
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Capability)}
}

// Register 注册一个能力。名称重复时返回 DUPLICATE_CAPABILITY 错误。
func (r *Registry) Register(cap Capability) error {
	name := strings.TrimSpace(cap.Name)
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "能力名称不能为空")
	}
	if cap.Invoke == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("能力 %s 缺少执行函数", name))
	}
	if _, ok := r.byName[name]; ok {
		return xerrors.New(xerrors.CodeDuplicateCapability, fmt.Sprintf("能力 %s 已注册", name))
	}
	cap.Name = name
	r.byName[name] = cap
	r.order = append(r.order, name)
	return nil
}

// MustRegister 与 Register 相同，但注册失败时 panic。
// 能力集在启动阶段静态声明，重复名称属于编程错误。
func (r *Registry) MustRegister(caps ...Capability) {
	for _, cap := range caps {
		if err := r.Register(cap); err != nil {
			panic(err)
		}
	}
}

// Catalog 按注册顺序返回全部能力。
func (r *Registry) Catalog() []Capability {
	caps := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		caps = append(caps, r.byName[name])
	}
	return caps
}

// Lookup 按名称查找能力。
func (r *Registry) Lookup(name string) (Capability, bool) {
	cap, ok := r.byName[name]
	return cap, ok
}

// Names 返回排序后的能力名称，便于诊断输出。
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Len 返回注册的能力数量。
func (r *Registry) Len() int {
	return len(r.order)
}
