// Package cmdbridge 通过调用外部命令实现规划器接口。
// 请求以 JSON 写入子进程标准输入，输出从标准输出读取，
// 便于接入本地脚本或离线推理工具做调试与回放。
package cmdbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
	"github.com/mgarg123/ai-single-file-agents/internal/planner"
)

// Client 通过子进程实现规划器调用。
type Client struct {
	execPath   string
	args       []string
	workingDir string
}

// NewClient 创建命令桥接客户端。execPath 为可执行文件路径，必填。
func NewClient(execPath string, args []string, workingDir string) (*Client, error) {
	if strings.TrimSpace(execPath) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未指定规划器命令路径")
	}
	return &Client{
		execPath:   execPath,
		args:       args,
		workingDir: workingDir,
	}, nil
}

// Complete 执行外部命令并解析输出。
func (c *Client) Complete(ctx context.Context, req planner.Request) (*planner.Response, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	messages := make([]message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, message{Role: string(m.Role), Content: m.Content})
	}

	payload := map[string]any{
		"system":    req.System,
		"messages":  messages,
		"timestamp": time.Now().Unix(),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePlannerCommunication, err, "序列化规划器请求失败")
	}

	command := exec.CommandContext(ctx, c.execPath, c.args...)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodePlannerCommunication, err,
			fmt.Sprintf("执行规划器命令失败, stderr=%s", strings.TrimSpace(stderr.String())))
	}

	var resp struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		// 非 JSON 输出按原始文本处理，便于直接接普通脚本。
		return &planner.Response{Content: strings.TrimSpace(stdout.String())}, nil
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, xerrors.New(xerrors.CodePlannerCommunication, "规划器命令输出为空")
	}

	return &planner.Response{Content: resp.Content}, nil
}

// ResolveExecPath 根据基准目录推导命令绝对路径。
func ResolveExecPath(baseDir, execPath string) string {
	if execPath == "" {
		return ""
	}
	if filepath.IsAbs(execPath) {
		return execPath
	}
	if baseDir == "" {
		return execPath
	}
	return filepath.Join(baseDir, execPath)
}

var _ planner.Client = (*Client)(nil)
