package capability

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
	"github.com/mgarg123/ai-single-file-agents/pkg/logger"
)

// Invocation 是从一轮规划器输出中解析出的调用请求，
// 在一次循环迭代内创建并消费。
type Invocation struct {
	Capability string
	Args       map[string]any
}

// Result 是一次能力执行的归一化结果。
type Result struct {
	// Summary 是写回观察轮次的文本摘要。执行失败时为失败描述。
	Summary string
	// Value 是可选的结构化结果。
	Value any
	// Failed 表示底层能力报告了错误。错误已被吸收，不会向上传播。
	Failed bool
}

// Executor 在注册表与外部协作方之间充当适配层：
// 校验参数、注入确认端口、吸收执行期错误。
type Executor struct {
	registry *Registry
	env      Env
	log      *slog.Logger
}

// ExecutorOption 定义可选配置。
type ExecutorOption func(*Executor)

// WithConfirm 注入确认回调，替代默认的标准输入确认。
func WithConfirm(confirm func(prompt string) bool) ExecutorOption {
	return func(e *Executor) {
		if confirm != nil {
			e.env.Confirm = confirm
		}
	}
}

// WithWorkDir 设置能力解析相对路径的基准目录。
func WithWorkDir(dir string) ExecutorOption {
	return func(e *Executor) {
		e.env.WorkDir = dir
	}
}

// NewExecutor 构造 Executor。默认确认端口从标准输入读取 y/n。
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		env:      Env{Confirm: stdinConfirm},
		log:      logger.Named("executor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute 查找并执行能力。未知能力与缺失必填参数在执行前返回错误；
// 能力自身抛出的任何错误都被吸收为失败摘要，绝不向上传播。
func (e *Executor) Execute(ctx context.Context, inv Invocation) (result Result, err error) {
	if e.registry == nil {
		return Result{}, xerrors.New(xerrors.CodeInitializationFailure, "能力注册表未配置")
	}

	cap, ok := e.registry.Lookup(inv.Capability)
	if !ok {
		return Result{}, xerrors.New(xerrors.CodeUnknownCapability,
			fmt.Sprintf("未知能力: %s", inv.Capability),
			xerrors.WithMetadata("capability", inv.Capability))
	}

	args, err := normalizeArgs(cap, inv.Args)
	if err != nil {
		return Result{}, err
	}

	// 能力内部的 panic 同样按执行失败吸收。
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("能力执行 panic",
				slog.String("capability", cap.Name),
				slog.Any("panic", r))
			result = Result{
				Summary: fmt.Sprintf("Error executing %s: internal failure: %v", cap.Name, r),
				Failed:  true,
			}
			err = nil
		}
	}()

	summary, value, invokeErr := cap.Invoke(ctx, args, e.env)
	if invokeErr != nil {
		e.log.Warn("能力执行失败",
			slog.String("capability", cap.Name),
			slog.Any("error", invokeErr))
		if summary == "" {
			summary = fmt.Sprintf("Error executing %s: %v", cap.Name, invokeErr)
		}
		return Result{Summary: summary, Failed: true}, nil
	}
	return Result{Summary: summary, Value: value}, nil
}

// normalizeArgs 校验必填参数、填充默认值并按声明类型做宽松转换。
func normalizeArgs(cap Capability, raw map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(cap.Params))
	for _, param := range cap.Params {
		value, ok := raw[param.Name]
		if !ok || value == nil {
			if param.Required {
				return nil, xerrors.New(xerrors.CodeMissingArgument,
					fmt.Sprintf("能力 %s 缺少必填参数 %s", cap.Name, param.Name),
					xerrors.WithMetadata("capability", cap.Name),
					xerrors.WithMetadata("param", param.Name))
			}
			if param.Default != nil {
				args[param.Name] = param.Default
			}
			continue
		}
		coerced, err := coerce(value, param.Type)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeMalformedArguments, err,
				fmt.Sprintf("能力 %s 的参数 %s 类型不符", cap.Name, param.Name))
		}
		args[param.Name] = coerced
	}
	return args, nil
}

// coerce 将 JSON 反序列化产生的宽松类型转换为参数声明的类型。
func coerce(value any, typ string) (any, error) {
	switch typ {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
	case "int":
		switch v := value.(type) {
		case float64:
			return int(v), nil
		case int:
			return v, nil
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("期望整数，得到 %q", v)
			}
			return parsed, nil
		}
	case "float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("期望浮点数，得到 %q", v)
			}
			return parsed, nil
		}
	case "bool":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("期望布尔值，得到 %q", v)
			}
			return parsed, nil
		}
	default:
		return value, nil
	}
	return nil, fmt.Errorf("期望 %s，得到 %T", typ, value)
}

// stdinConfirm 是默认的交互确认端口。
func stdinConfirm(prompt string) bool {
	fmt.Printf("%s (y/n) ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
