// Package hints 提供注入系统提示的操作指引检索。
// 指引条目从 YAML 文件加载，按指令中的关键词做简单匹配，
// 命中的片段会追加到规划器的系统提示末尾。
package hints

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

// Provider 定义指引检索的通用接口。
type Provider interface {
	Query(instruction string) []Snippet
}

// Snippet 描述一段可注入提示的操作指引。
type Snippet struct {
	Title    string   `yaml:"title"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
	Agents   []string `yaml:"agents"`
}

// StaticProvider 基于内存条目做关键词匹配。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态指引库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 YAML 文件加载指引条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "指引文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析指引文件路径失败")
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取指引文件失败")
	}

	var entries []Snippet
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析指引文件失败")
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据指令做关键词匹配，命中条目不超过 maxResults。
func (p *StaticProvider) Query(instruction string) []Snippet {
	if p == nil {
		return nil
	}

	instruction = strings.ToLower(strings.TrimSpace(instruction))

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, instruction) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(snippet Snippet, instruction string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(instruction, normalized) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
