// Package run 负责编排运行的排队、持久化与异步执行。
// 一次运行对应一条自然语言指令在某个能力集上的完整编排循环。
package run

import (
	stdErrors "errors"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

// Status 表示运行在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// AgentKind 标识运行使用的能力集。
type AgentKind string

const (
	AgentFile    AgentKind = "file"
	AgentGit     AgentKind = "git"
	AgentBrowser AgentKind = "browser"
)

// IsValidAgent 检查能力集标识是否受支持。
func IsValidAgent(kind AgentKind) bool {
	switch kind {
	case AgentFile, AgentGit, AgentBrowser:
		return true
	default:
		return false
	}
}

// ExecutionResult 保存一次编排循环的终止状态。
type ExecutionResult struct {
	Outcome      string `json:"outcome"`
	FailureCode  string `json:"failure_code,omitempty"`
	Summary      string `json:"summary"`
	Executions   int    `json:"executions"`
	Completed    int    `json:"completed"`
	Estimated    int    `json:"estimated"`
	PlannerCalls int    `json:"planner_calls"`
}

// Run 描述一次排队执行的编排运行。
type Run struct {
	ID          string           `json:"id"`
	Instruction string           `json:"instruction"`
	Agent       AgentKind        `json:"agent"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Status      Status           `json:"status"`
	Attempts    int              `json:"attempts"`
	MaxRetries  int              `json:"max_retries"`
	LastError   string           `json:"last_error,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	CreatedAt   int64            `json:"created_at"`
	UpdatedAt   int64            `json:"updated_at"`
}

var (
	// ErrRunNotFound 表示指定的运行不存在。
	ErrRunNotFound = xerrors.New(CodeRunNotFound, "run not found")
	// ErrRunConflict 表示运行在当前状态下无法进行所请求的操作。
	ErrRunConflict = xerrors.New(CodeRunConflict, "run conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRunCompleted 表示运行已经成功完成。
	ErrRunCompleted = xerrors.New(CodeRunCompleted, "run already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrRunExhausted 表示运行的重试次数已经耗尽。
	ErrRunExhausted = xerrors.New(CodeRunExhausted, "run retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeRunNotFound   xerrors.Code = "RUN_NOT_FOUND"
	CodeRunConflict   xerrors.Code = "RUN_CONFLICT"
	CodeRunCompleted  xerrors.Code = "RUN_COMPLETED"
	CodeRunExhausted  xerrors.Code = "RUN_RETRIES_EXHAUSTED"
	CodeRunValidation xerrors.Code = "RUN_VALIDATION_FAILED"
	CodeRunPublish    xerrors.Code = "RUN_PUBLISH_FAILED"
	CodeRunProcessing xerrors.Code = "RUN_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeRunNotFound, xerrors.Attributes{
		Message:   "run not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRunConflict, xerrors.Attributes{
		Message:   "run conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRunCompleted, xerrors.Attributes{
		Message:   "run already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRunExhausted, xerrors.Attributes{
		Message:   "run retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeRunValidation, xerrors.Attributes{
		Message:   "run validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRunPublish, xerrors.Attributes{
		Message:   "failed to publish run",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRunProcessing, xerrors.Attributes{
		Message:   "run execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsRunError 判断错误是否为指定的运行错误码。
func IsRunError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch target {
	case CodeRunNotFound:
		return stdErrors.Is(err, ErrRunNotFound)
	case CodeRunConflict:
		return stdErrors.Is(err, ErrRunConflict)
	case CodeRunCompleted:
		return stdErrors.Is(err, ErrRunCompleted)
	case CodeRunExhausted:
		return stdErrors.Is(err, ErrRunExhausted)
	default:
		return false
	}
}

// IsValidStatus 检查给定的运行状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneRun(r *Run) *Run {
	clone := *r
	if r.Result != nil {
		resultCopy := *r.Result
		clone.Result = &resultCopy
	}
	clone.Metadata = cloneMetadata(r.Metadata)
	return &clone
}

func resultPresent(r *Run) bool {
	if r == nil || r.Result == nil {
		return false
	}
	return r.Result.Outcome != "" || r.Result.Summary != "" || r.Result.FailureCode != ""
}
