// Package config 负责启动阶段的配置加载。
// 凭证缺失属于启动期致命错误，循环运行期间不再读取配置。
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了服务在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Queue   QueueConfig   `json:"queue"`
	Planner PlannerConfig `json:"planner"`
	Agent   AgentConfig   `json:"agent"`
	Logging LoggingConfig `json:"logging"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 描述运行存储后端的连接信息。
type StorageConfig struct {
	RunStore RunStoreConfig `json:"run_store"`
}

// RunStoreConfig 支持 memory 与 mysql 两种驱动。
type RunStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述运行队列后端。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// PlannerConfig 用于配置规划器的调用方式。
type PlannerConfig struct {
	Provider    string          `json:"provider"`
	OpenAI      OpenAIConfig    `json:"openai"`
	CmdBridge   CmdBridgeConfig `json:"cmd_bridge"`
	TimeoutSecs int             `json:"timeout_seconds"`
}

// OpenAIConfig 描述 Chat Completions 兼容服务的调用参数。
// APIKeyEnv 指定承载密钥的环境变量名，密钥本身不落盘。
type OpenAIConfig struct {
	APIKeyEnv   string  `json:"api_key_env"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// CmdBridgeConfig 描述通过外部命令完成规划时所需的信息。
type CmdBridgeConfig struct {
	ExecPath   string   `json:"exec_path"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"working_dir"`
}

// AgentConfig 控制编排循环的行为参数。
type AgentConfig struct {
	// MaxIterations 按能力集区分迭代上限，未配置时使用各自默认值。
	MaxIterations map[string]int `json:"max_iterations"`
	// HistoryRetention 限制随规划请求发送的轮次数量，0 表示不限制。
	HistoryRetention int `json:"history_retention"`
	// StrictParsing 开启后同一轮多个调用信封按解析失败处理。
	StrictParsing bool `json:"strict_parsing"`
	// HintsPath 指向 YAML 指引文件，为空则不加载。
	HintsPath string `json:"hints_path"`
	// WorkDir 是能力解析相对路径的基准目录。
	WorkDir string `json:"work_dir"`
	// MaxRetries 控制队列运行的重试次数。
	MaxRetries int `json:"max_retries"`
	// Workers 控制处理器的消费协程数量。
	Workers int `json:"workers"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志输出。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// PlannerTimeout 返回规划器调用超时。
func (c *Config) PlannerTimeout() time.Duration {
	if c.Planner.TimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Planner.TimeoutSecs) * time.Second
}

// OpenAIKey 从配置指定的环境变量读取密钥。
func (c *Config) OpenAIKey() (string, error) {
	env := strings.TrimSpace(c.Planner.OpenAI.APIKeyEnv)
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" {
		return "", fmt.Errorf("环境变量 %s 未设置规划器密钥", env)
	}
	return key, nil
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.RunStore.Driver == "" {
		c.Storage.RunStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}

	if c.Planner.Provider == "" {
		c.Planner.Provider = "openai"
	}
	if c.Planner.OpenAI.Model == "" {
		c.Planner.OpenAI.Model = "gpt-4o-mini"
	}

	if c.Agent.MaxRetries <= 0 {
		c.Agent.MaxRetries = 3
	}
	if c.Agent.Workers <= 0 {
		c.Agent.Workers = 1
	}
	if c.Agent.WorkDir == "" {
		c.Agent.WorkDir, _ = os.Getwd()
	} else if !filepath.IsAbs(c.Agent.WorkDir) {
		c.Agent.WorkDir = filepath.Join(baseDir, c.Agent.WorkDir)
	}
	if c.Agent.HintsPath != "" && !filepath.IsAbs(c.Agent.HintsPath) {
		c.Agent.HintsPath = filepath.Join(baseDir, c.Agent.HintsPath)
	}

	if c.Planner.CmdBridge.WorkingDir == "" {
		c.Planner.CmdBridge.WorkingDir = baseDir
	} else if !filepath.IsAbs(c.Planner.CmdBridge.WorkingDir) {
		c.Planner.CmdBridge.WorkingDir = filepath.Join(baseDir, c.Planner.CmdBridge.WorkingDir)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
