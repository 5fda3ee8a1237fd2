package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mgarg123/ai-single-file-agents/internal/agent"
	"github.com/mgarg123/ai-single-file-agents/internal/api"
	"github.com/mgarg123/ai-single-file-agents/internal/capability"
	"github.com/mgarg123/ai-single-file-agents/internal/capability/browser"
	"github.com/mgarg123/ai-single-file-agents/internal/capability/file"
	"github.com/mgarg123/ai-single-file-agents/internal/capability/git"
	"github.com/mgarg123/ai-single-file-agents/internal/config"
	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
	"github.com/mgarg123/ai-single-file-agents/internal/hints"
	"github.com/mgarg123/ai-single-file-agents/internal/planner"
	"github.com/mgarg123/ai-single-file-agents/internal/planner/cmdbridge"
	"github.com/mgarg123/ai-single-file-agents/internal/planner/openai"
	"github.com/mgarg123/ai-single-file-agents/internal/run"
	"github.com/mgarg123/ai-single-file-agents/pkg/logger"
)

const usage = `用法: agentd <command> [flags]

命令:
  run    -agent file|git|browser "<instruction>"   直接执行一条指令
  serve                                            启动 API 服务与运行处理器
  list-capabilities -agent file|git|browser        打印能力目录

环境变量 AGENT_CONFIG 指定配置文件路径，默认 configs/agent.json。`

// defaultIterations 是各能力集的迭代上限默认值。
var defaultIterations = map[run.AgentKind]int{
	run.AgentFile:    15,
	run.AgentGit:     10,
	run.AgentBrowser: 20,
}

// main 是守护进程与命令行工具共用的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(ctx, os.Args[2:])
	case "serve":
		err = serveCommand(ctx, os.Args[2:])
	case "list-capabilities":
		err = listCapabilitiesCommand(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	_ = logger.Sync()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "agentd: %v\n", err)
		os.Exit(1)
	}
}

// runCommand 直接驱动编排循环执行一条指令，成功退出码为 0。
func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	agentFlag := fs.String("agent", string(run.AgentFile), "能力集: file、git 或 browser")
	configFlag := fs.String("config", "", "配置文件路径，默认读取 AGENT_CONFIG")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("run 命令需要且仅需要一条指令")
	}
	instruction := fs.Arg(0)

	kind := run.AgentKind(*agentFlag)
	if !run.IsValidAgent(kind) {
		return fmt.Errorf("不支持的能力集: %s", *agentFlag)
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	plannerClient, err := createPlanner(cfg)
	if err != nil {
		return err
	}

	hintsProvider, err := loadHints(cfg)
	if err != nil {
		return err
	}

	session := browser.NewSession()
	defer session.Close()

	// 命令行模式下破坏性操作通过标准输入确认。
	ag, err := buildAgent(cfg, kind, plannerClient, hintsProvider, buildRegistry(kind, session), nil)
	if err != nil {
		return err
	}

	result, err := ag.Run(ctx, instruction)
	if result != nil {
		fmt.Println(result.Summary)
	}
	return err
}

// serveCommand 启动 API 服务与队列处理器。
func serveCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFlag := fs.String("config", "", "配置文件路径，默认读取 AGENT_CONFIG")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	plannerClient, err := createPlanner(cfg)
	if err != nil {
		return err
	}

	hintsProvider, err := loadHints(cfg)
	if err != nil {
		return err
	}

	store, err := createStore(cfg)
	if err != nil {
		return err
	}

	queue, err := createQueue(cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	session := browser.NewSession()
	defer session.Close()

	// 服务模式下无操作者在场，破坏性操作自动确认并留痕。
	confirm := func(prompt string) bool {
		logger.Audit().Info("自动确认破坏性操作", slog.String("prompt", prompt))
		return true
	}

	agents := make(map[run.AgentKind]*agent.Agent, len(defaultIterations))
	registries := make(map[run.AgentKind]*capability.Registry, len(defaultIterations))
	for kind := range defaultIterations {
		registry := buildRegistry(kind, session)
		ag, err := buildAgent(cfg, kind, plannerClient, hintsProvider, registry, confirm)
		if err != nil {
			_ = store.Close()
			_ = queue.Close()
			return err
		}
		agents[kind] = ag
		registries[kind] = registry
	}

	runner := run.RunnerFunc(func(ctx context.Context, kind run.AgentKind, instruction string) (*agent.RunResult, error) {
		ag, ok := agents[kind]
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的能力集: "+string(kind))
		}
		return ag.Run(ctx, instruction)
	})

	service := run.NewService(store, queue, cfg.Agent.MaxRetries)
	defer service.Close()

	processor := run.NewProcessor(runner, store, queue, queue,
		run.WithWorkerCount(cfg.Agent.Workers),
		run.WithProcessorLogger(logger.Named("processor")),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("运行处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, service, registries)
	logger.L().Info("API 服务启动", slog.String("address", cfg.Server.Address))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// listCapabilitiesCommand 打印指定能力集的目录，不触发规划器调用。
func listCapabilitiesCommand(args []string) error {
	fs := flag.NewFlagSet("list-capabilities", flag.ExitOnError)
	agentFlag := fs.String("agent", string(run.AgentFile), "能力集: file、git 或 browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind := run.AgentKind(*agentFlag)
	if !run.IsValidAgent(kind) {
		return fmt.Errorf("不支持的能力集: %s", *agentFlag)
	}

	session := browser.NewSession()
	defer session.Close()

	registry := buildRegistry(kind, session)
	for _, c := range registry.Catalog() {
		fmt.Printf("%s  %s\n", c.Signature(), c.Description)
	}
	return nil
}

// loadConfig 读取配置文件，文件缺失时退回默认配置。
func loadConfig(override string) (*config.Config, error) {
	path := override
	if path == "" {
		path = os.Getenv("AGENT_CONFIG")
	}
	if path == "" {
		path = filepath.Join("configs", "agent.json")
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func initLogging(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	})
}

// createPlanner 依据配置选择规划器实现。
func createPlanner(cfg *config.Config) (planner.Client, error) {
	switch cfg.Planner.Provider {
	case "", "openai":
		apiKey, err := cfg.OpenAIKey()
		if err != nil {
			return nil, err
		}
		return openai.NewClient(openai.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.Planner.OpenAI.BaseURL,
			Model:       cfg.Planner.OpenAI.Model,
			Temperature: cfg.Planner.OpenAI.Temperature,
			Timeout:     cfg.PlannerTimeout(),
		})
	case "command":
		execPath := cmdbridge.ResolveExecPath(cfg.Planner.CmdBridge.WorkingDir, cfg.Planner.CmdBridge.ExecPath)
		return cmdbridge.NewClient(execPath, cfg.Planner.CmdBridge.Args, cfg.Planner.CmdBridge.WorkingDir)
	default:
		return nil, fmt.Errorf("未知的规划器 provider: %s", cfg.Planner.Provider)
	}
}

func loadHints(cfg *config.Config) (hints.Provider, error) {
	if strings.TrimSpace(cfg.Agent.HintsPath) == "" {
		return nil, nil
	}
	return hints.LoadStaticProvider(cfg.Agent.HintsPath, 0)
}

// buildRegistry 按能力集组装注册表。
func buildRegistry(kind run.AgentKind, session *browser.Session) *capability.Registry {
	registry := capability.NewRegistry()
	switch kind {
	case run.AgentFile:
		registry.MustRegister(file.Set()...)
	case run.AgentGit:
		registry.MustRegister(git.Set()...)
	case run.AgentBrowser:
		registry.MustRegister(session.Set()...)
	}
	return registry
}

// buildAgent 为指定能力集组装编排器。confirm 为 nil 时使用标准输入确认。
func buildAgent(cfg *config.Config, kind run.AgentKind, plannerClient planner.Client, hintsProvider hints.Provider, registry *capability.Registry, confirm func(string) bool) (*agent.Agent, error) {
	execOpts := []capability.ExecutorOption{capability.WithWorkDir(cfg.Agent.WorkDir)}
	if confirm != nil {
		execOpts = append(execOpts, capability.WithConfirm(confirm))
	}
	executor := capability.NewExecutor(registry, execOpts...)

	maxIterations := defaultIterations[kind]
	if configured, ok := cfg.Agent.MaxIterations[string(kind)]; ok && configured > 0 {
		maxIterations = configured
	}

	opts := []agent.Option{
		agent.WithMaxIterations(maxIterations),
		agent.WithStrictParsing(cfg.Agent.StrictParsing),
	}
	if cfg.Agent.HistoryRetention > 0 {
		opts = append(opts, agent.WithHistoryRetention(cfg.Agent.HistoryRetention))
	}
	if hintsProvider != nil {
		opts = append(opts, agent.WithHints(hintsProvider))
	}
	return agent.New(plannerClient, registry, executor, opts...)
}

// createStore 依据配置选择运行存储后端。
func createStore(cfg *config.Config) (run.Store, error) {
	switch cfg.Storage.RunStore.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "mysql":
		return run.NewMySQLStore(cfg.Storage.RunStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.RunStore.Driver)
	}
}

// createQueue 依据配置选择运行队列后端。
func createQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(1024), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}
