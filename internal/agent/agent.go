// Package agent 实现编排循环的核心状态机：
// Planning → Parsed → Executing → Observed → {Planning | Terminal}。
// 每轮至多执行一个能力调用，账本是跨迭代状态的唯一载体。
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
	"github.com/mgarg123/ai-single-file-agents/internal/hints"
	"github.com/mgarg123/ai-single-file-agents/internal/planner"
	"github.com/mgarg123/ai-single-file-agents/pkg/logger"
)

// Outcome 是一次运行的终止状态。
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
)

const defaultMaxIterations = 15

// RunResult 描述一次运行的最终状态。Summary 始终以一句话说明
// 完成了什么、遗留了什么或因何失败，绝不包含原始堆栈。
type RunResult struct {
	Outcome      Outcome
	FailureCode  xerrors.Code
	Summary      string
	Executions   int
	Completed    int
	Estimated    int
	PlannerCalls int
	Turns        []Turn
}

// Agent 是单任务编排器：持有规划器、注册表与执行适配层，
// 串行推进循环直到终止。
type Agent struct {
	planner       planner.Client
	registry      *capability.Registry
	executor      *capability.Executor
	compiler      *promptCompiler
	parser        *Parser
	estimate      Estimator
	maxIterations int
	strict        bool
	hints         hints.Provider
	retainTurns   int
	log           *slog.Logger
}

// Option 定义可选配置。
type Option func(*Agent)

// WithMaxIterations 设置全局迭代上限，即规划器调用次数的硬上界。
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithEstimator 替换子操作估算策略。
func WithEstimator(estimate Estimator) Option {
	return func(a *Agent) {
		if estimate != nil {
			a.estimate = estimate
		}
	}
}

// WithStrictParsing 开启严格解析：同一轮多个信封按解析失败处理，
// 而不是默认的只采纳第一个。
func WithStrictParsing(strict bool) Option {
	return func(a *Agent) {
		a.strict = strict
	}
}

// WithHints 注入操作指引库。
func WithHints(provider hints.Provider) Option {
	return func(a *Agent) {
		a.hints = provider
	}
}

// WithHistoryRetention 限制随规划请求发送的轮次数量。
func WithHistoryRetention(turns int) Option {
	return func(a *Agent) {
		if turns > 0 {
			a.retainTurns = turns
		}
	}
}

// New 创建编排器。规划器、注册表与执行器都是必要协作方。
func New(p planner.Client, registry *capability.Registry, executor *capability.Executor, opts ...Option) (*Agent, error) {
	if p == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "规划器客户端未配置")
	}
	if registry == nil || registry.Len() == 0 {
		return nil, xerrors.New(xerrors.CodeConfiguration, "能力注册表为空")
	}
	if executor == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "能力执行器未配置")
	}

	a := &Agent{
		planner:       p,
		registry:      registry,
		executor:      executor,
		estimate:      EstimateByConnectives,
		maxIterations: defaultMaxIterations,
		log:           logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.compiler = newPromptCompiler(registry, a.hints, a.retainTurns)
	a.parser = NewParser(a.strict)
	return a, nil
}

// Run 执行一条指令直到终止。终止性失败同时通过返回错误与
// RunResult.FailureCode 暴露；RunResult 在两种情况下都非空。
func (a *Agent) Run(ctx context.Context, instruction string) (*RunResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "指令不能为空")
	}

	ledger := NewLedger()
	ledger.Append(TurnUser, instruction)

	estimated := a.estimate(instruction)
	state := runState{estimated: estimated}

	a.log.Info("任务开始",
		slog.String("instruction", truncateForLog(instruction)),
		slog.Int("estimated_operations", estimated))

	for iter := 0; iter < a.maxIterations; iter++ {
		outcome, err := a.step(ctx, instruction, ledger, &state)
		if outcome != nil {
			return a.finish(outcome, &state, ledger), err
		}
	}

	// 迭代上限是硬上界，任何指令都不会超过它。
	summary := fmt.Sprintf("Stopped after %d planner calls: completed %d of %d planned operation(s).",
		state.plannerCalls, state.completed, state.estimated)
	result := a.finish(&RunResult{
		Outcome:     OutcomeFailed,
		FailureCode: xerrors.CodeMaxIterations,
		Summary:     summary,
	}, &state, ledger)
	return result, xerrors.New(xerrors.CodeMaxIterations, summary)
}

// runState 聚合循环内的进度跟踪，不离开一次 Run 的作用域。
type runState struct {
	estimated    int
	completed    int
	executions   int
	plannerCalls int
	lastCap      string
	lastNotFound bool
}

// step 推进一轮 Planning→Observed。返回 nil 表示回到 Planning，
// 返回非 nil 的 RunResult 表示到达终止状态。
func (a *Agent) step(ctx context.Context, instruction string, ledger *Ledger, state *runState) (*RunResult, error) {
	state.plannerCalls++

	req := a.compiler.Compile(instruction, ledger)
	resp, err := a.planner.Complete(ctx, req)
	if err != nil {
		// 规划器是推进的必要条件，失败时记录合成轮次并终止运行。
		ledger.Append(TurnObservation, fmt.Sprintf("Planner unreachable: %v", err))
		summary := "The planner could not be reached; the task was aborted."
		return &RunResult{
			Outcome:     OutcomeFailed,
			FailureCode: xerrors.CodePlannerCommunication,
			Summary:     summary,
		}, xerrors.Wrap(xerrors.CodePlannerCommunication, err, summary)
	}

	parsed, parseErr := a.parser.Parse(resp.Content)
	if parseErr != nil {
		// 解析失败不执行能力，写回纠正轮次让规划器重试。
		ledger.Append(TurnPlanner, resp.Content)
		ledger.Append(TurnObservation, correctionFor(parseErr))
		a.log.Warn("规划器输出解析失败", slog.Any("error", parseErr))
		return nil, nil
	}

	if !parsed.Found {
		ledger.Append(TurnPlanner, resp.Content)
		summary := fmt.Sprintf("Task finished: completed %d of %d planned operation(s).",
			state.completed, state.estimated)
		if state.executions == 0 {
			summary = "Nothing to do: the planner selected no capability."
		}
		return &RunResult{Outcome: OutcomeDone, Summary: summary}, nil
	}

	ledger.Append(TurnPlanner, parsed.Raw)

	result, execErr := a.executor.Execute(ctx, *parsed.Invocation)
	if execErr != nil {
		return a.observeExecError(ledger, state, parsed, execErr)
	}

	state.executions++
	ledger.Append(TurnObservation, result.Summary)
	a.log.Info("能力执行完成",
		slog.String("capability", parsed.Invocation.Capability),
		slog.Bool("failed", result.Failed),
		slog.Int("execution", state.executions))

	return a.observe(state, parsed, result)
}

// observeExecError 处理执行器在调用能力前报告的错误。
func (a *Agent) observeExecError(ledger *Ledger, state *runState, parsed *Parsed, execErr error) (*RunResult, error) {
	code := xerrors.CodeOf(execErr)
	switch code {
	case xerrors.CodeUnknownCapability:
		ledger.Append(TurnObservation, fmt.Sprintf("Unknown capability %q.", parsed.Invocation.Capability))
		summary := fmt.Sprintf("The planner requested an unknown capability %q; the task was aborted.",
			parsed.Invocation.Capability)
		return &RunResult{
			Outcome:     OutcomeFailed,
			FailureCode: code,
			Summary:     summary,
		}, execErr
	case xerrors.CodeMissingArgument, xerrors.CodeMalformedArguments:
		// 参数问题可由规划器修正，写回纠正轮次后重试。
		ledger.Append(TurnObservation, correctionFor(execErr))
		a.log.Warn("调用参数无效",
			slog.String("capability", parsed.Invocation.Capability),
			slog.Any("error", execErr))
		return nil, nil
	default:
		summary := "The capability executor failed before execution; the task was aborted."
		ledger.Append(TurnObservation, summary)
		return &RunResult{
			Outcome:     OutcomeFailed,
			FailureCode: code,
			Summary:     summary,
		}, execErr
	}
}

// observe 在 Observed 状态应用完成启发式。
func (a *Agent) observe(state *runState, parsed *Parsed, result capability.Result) (*RunResult, error) {
	name := parsed.Invocation.Capability
	summaryLower := strings.ToLower(result.Summary)

	// 取消不计入完成数，也不会仅因这一步而终止。
	if strings.Contains(summaryLower, "cancelled") {
		state.lastCap = name
		state.lastNotFound = false
		return nil, nil
	}

	// 同一能力紧接着上一轮的未找到类失败再次出现时，重复不会带来进展。
	if name == state.lastCap && state.lastNotFound {
		summary := fmt.Sprintf("No forward progress: %q failed the same way twice in a row.", name)
		return &RunResult{
			Outcome:     OutcomeFailed,
			FailureCode: xerrors.CodeStagnation,
			Summary:     summary,
		}, xerrors.New(xerrors.CodeStagnation, summary, xerrors.WithMetadata("capability", name))
	}

	state.lastCap = name
	state.lastNotFound = isNotFound(summaryLower)

	if result.Failed {
		return nil, nil
	}

	state.completed++
	if parsed.Done || state.completed >= state.estimated {
		return &RunResult{
			Outcome: OutcomeDone,
			Summary: fmt.Sprintf("Task finished: completed %d of %d planned operation(s).",
				state.completed, state.estimated),
		}, nil
	}
	return nil, nil
}

func (a *Agent) finish(result *RunResult, state *runState, ledger *Ledger) *RunResult {
	result.Executions = state.executions
	result.Completed = state.completed
	result.Estimated = state.estimated
	result.PlannerCalls = state.plannerCalls
	result.Turns = ledger.Snapshot()

	a.log.Info("任务终止",
		slog.String("outcome", string(result.Outcome)),
		slog.String("failure_code", string(result.FailureCode)),
		slog.Int("executions", result.Executions),
		slog.Int("planner_calls", result.PlannerCalls))
	logger.Audit().Info("run finished",
		slog.String("outcome", string(result.Outcome)),
		slog.String("failure_code", string(result.FailureCode)),
		slog.Int("executions", result.Executions),
		slog.Int("completed", result.Completed),
		slog.Int("estimated", result.Estimated))
	return result
}

// correctionFor 把可重试的解析/参数错误转写成规划器可理解的纠正指示。
func correctionFor(err error) string {
	return fmt.Sprintf("Invalid invocation: %v. Respond with exactly one JSON object of the form "+
		"{\"tool\": <name>, \"args\": {...}, \"done\": <bool>}.", err)
}

// isNotFound 判断结果摘要是否属于未找到类硬失败。
func isNotFound(summaryLower string) bool {
	return strings.Contains(summaryLower, "not found") ||
		strings.Contains(summaryLower, "no such") ||
		strings.Contains(summaryLower, "does not exist")
}
