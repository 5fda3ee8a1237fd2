package run

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/mgarg123/ai-single-file-agents/internal/agent"
	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
	"github.com/mgarg123/ai-single-file-agents/pkg/logger"
)

// Runner 定义了处理器所需的编排能力：按能力集执行一条指令。
type Runner interface {
	Run(ctx context.Context, kind AgentKind, instruction string) (*agent.RunResult, error)
}

// RunnerFunc 允许用函数实现 Runner。
type RunnerFunc func(ctx context.Context, kind AgentKind, instruction string) (*agent.RunResult, error)

// Run 实现 Runner 接口。
func (f RunnerFunc) Run(ctx context.Context, kind AgentKind, instruction string) (*agent.RunResult, error) {
	return f(ctx, kind, instruction)
}

// Processor 负责从队列消费运行并交给编排器执行。
type Processor struct {
	runner      Runner
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动运行处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置运行消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, runID string) error {
	if p.store == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	r, err := p.store.Claim(ctx, runID)
	if err != nil {
		if stdErrors.Is(err, ErrRunNotFound) || stdErrors.Is(err, ErrRunCompleted) || stdErrors.Is(err, ErrRunExhausted) {
			p.logDebug("跳过运行", slog.String("run_id", runID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取运行失败", slog.Any("error", err), slog.String("run_id", runID))
		return err
	}

	result, execErr := p.runner.Run(ctx, r.Agent, r.Instruction)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, r, result, execErr)
	}

	record := toExecutionResult(result)
	if err := p.store.MarkSucceeded(ctx, r.ID, record); err != nil {
		logger.L().Error("标记运行成功状态失败", slog.Any("error", err), slog.String("run_id", r.ID))
		if storeErr := p.store.MarkFailed(ctx, r.ID, CodeRunProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("run_id", r.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return xerrors.Wrap(CodeRunPublish, pubErr, fmt.Sprintf("运行 %s 在标记成功失败后重投失败", r.ID))
		}
		return nil
	}
	logger.Audit().Info("运行执行成功",
		slog.String("run_id", r.ID),
		slog.String("agent", string(r.Agent)),
		slog.String("summary", record.Summary),
		slog.Int("executions", record.Executions),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, r *Run, result *agent.RunResult, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeRunProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := r.Attempts >= r.MaxRetries || !retryable

	lastError := execErr.Error()
	if result != nil && result.Summary != "" {
		lastError = result.Summary
	}
	if storeErr := p.store.MarkFailed(ctx, r.ID, code, lastError, terminal); storeErr != nil {
		logger.L().Error("标记运行失败状态出错", slog.Any("error", storeErr), slog.String("run_id", r.ID))
		return storeErr
	}
	logger.Audit().Warn("运行执行失败",
		slog.String("run_id", r.ID),
		slog.String("agent", string(r.Agent)),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", r.Attempts),
		slog.Int("max_retries", r.MaxRetries),
	)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return xerrors.Wrap(CodeRunPublish, pubErr, fmt.Sprintf("运行 %s 重投失败", r.ID))
		}
		p.logDebug("运行已重新排队", slog.String("run_id", r.ID), slog.Int("attempts", r.Attempts))
	}
	return nil
}

func toExecutionResult(result *agent.RunResult) ExecutionResult {
	if result == nil {
		return ExecutionResult{}
	}
	return ExecutionResult{
		Outcome:      string(result.Outcome),
		FailureCode:  string(result.FailureCode),
		Summary:      result.Summary,
		Executions:   result.Executions,
		Completed:    result.Completed,
		Estimated:    result.Estimated,
		PlannerCalls: result.PlannerCalls,
	}
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}
