// Package browser 提供面向浏览器会话的能力集，基于 go-rod 驱动 CDP。
// 会话由长生命周期进程持有，同一时刻只有一个能力在操作页面，
// 因此这里不做页面级加锁，只保证 Close 恰好执行一次。
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
)

const notLaunched = "Browser not launched. Use launch_browser first."

// Session 持有浏览器进程与当前页面。
type Session struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	closed   bool
}

// NewSession 创建未启动的会话。
func NewSession() *Session {
	return &Session{}
}

// Set 返回绑定到本会话的浏览器能力集。
func (s *Session) Set() []capability.Capability {
	return []capability.Capability{
		{
			Name:        "launch_browser",
			Description: "Launch a browser session; must be called before any other browser capability.",
			Params: []capability.Param{
				{Name: "headless", Type: "bool", Default: true},
			},
			Invoke: s.launch,
		},
		{
			Name:        "close_browser",
			Description: "Close the browser session and release its resources.",
			Invoke:      s.close,
		},
		{
			Name:        "navigate_to_url",
			Description: "Navigate the current page to the given URL and wait for it to load.",
			Params: []capability.Param{
				{Name: "url", Type: "string", Required: true},
			},
			Invoke: s.navigate,
		},
		{
			Name:        "get_page_state",
			Description: "Report the current page URL, title and count of interactive elements.",
			Invoke:      s.pageState,
		},
		{
			Name:        "type_text",
			Description: "Type text into the element matching the given CSS selector.",
			Params: []capability.Param{
				{Name: "selector", Type: "string", Required: true},
				{Name: "text", Type: "string", Required: true},
			},
			Invoke: s.typeText,
		},
		{
			Name:        "click_element",
			Description: "Click the element matching the given CSS selector.",
			Params: []capability.Param{
				{Name: "selector", Type: "string", Required: true},
			},
			Invoke: s.click,
		},
		{
			Name:        "get_element_text",
			Description: "Read the text content of the element matching the given CSS selector.",
			Params: []capability.Param{
				{Name: "selector", Type: "string", Required: true},
			},
			Invoke: s.elementText,
		},
		{
			Name:        "take_screenshot",
			Description: "Save a screenshot of the current page to the given filename.",
			Params: []capability.Param{
				{Name: "filename", Type: "string", Default: "screenshot.png"},
			},
			Invoke: s.screenshot,
		},
		{
			Name:        "wait_for_selector",
			Description: "Wait until an element matching the CSS selector appears on the page.",
			Params: []capability.Param{
				{Name: "selector", Type: "string", Required: true},
				{Name: "timeout_ms", Type: "int", Default: 10000},
			},
			Invoke: s.waitForSelector,
		},
	}
}

// Close 释放浏览器资源。对任何退出路径都只生效一次。
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.closed || s.browser == nil {
		s.closed = true
		return nil
	}
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	s.browser = nil
	s.page = nil
	s.closed = true
	return err
}

func (s *Session) launch(_ context.Context, args map[string]any, _ capability.Env) (string, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return "Browser already launched. Close it first if you want to launch a new one.", nil, nil
	}

	headless := true
	if v, ok := args["headless"].(bool); ok {
		headless = v
	}

	l := launcher.New().Headless(headless)
	controlURL, err := l.Launch()
	if err != nil {
		return "", nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return "", nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return "", nil, fmt.Errorf("open page: %w", err)
	}

	s.launcher = l
	s.browser = browser
	s.page = page
	s.closed = false
	return fmt.Sprintf("Browser launched (headless=%v)", headless), nil, nil
}

func (s *Session) close(_ context.Context, _ map[string]any, _ capability.Env) (string, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return "No browser is currently launched.", nil, nil
	}
	if err := s.closeLocked(); err != nil {
		return "", nil, fmt.Errorf("close browser: %w", err)
	}
	return "Browser closed.", nil, nil
}

func (s *Session) currentPage() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) navigate(_ context.Context, args map[string]any, _ capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	url := strings.TrimSpace(str(args, "url"))
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	if err := page.Navigate(url); err != nil {
		return "", nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", nil, fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return fmt.Sprintf("Navigated to: %s", url), nil, nil
}

func (s *Session) pageState(_ context.Context, _ map[string]any, _ capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	info, err := page.Info()
	if err != nil {
		return "", nil, fmt.Errorf("read page info: %w", err)
	}
	elements, err := page.Elements("a, button, input, textarea, select")
	if err != nil {
		return "", nil, fmt.Errorf("enumerate interactive elements: %w", err)
	}
	state := map[string]any{
		"url":                  info.URL,
		"title":                info.Title,
		"interactive_elements": len(elements),
	}
	return fmt.Sprintf("Page state: url=%s title=%q interactive_elements=%d",
		info.URL, info.Title, len(elements)), state, nil
}

func (s *Session) typeText(_ context.Context, args map[string]any, _ capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	selector, text := str(args, "selector"), str(args, "text")
	el, err := page.Timeout(10 * time.Second).Element(selector)
	if err != nil {
		return fmt.Sprintf("Element not found: %s", selector), nil, nil
	}
	if err := el.Input(text); err != nil {
		return "", nil, fmt.Errorf("type into %s: %w", selector, err)
	}
	return fmt.Sprintf("Typed %q into element %q", text, selector), nil, nil
}

func (s *Session) click(_ context.Context, args map[string]any, _ capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	selector := str(args, "selector")
	el, err := page.Timeout(10 * time.Second).Element(selector)
	if err != nil {
		return fmt.Sprintf("Element not found: %s", selector), nil, nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", nil, fmt.Errorf("click %s: %w", selector, err)
	}
	return fmt.Sprintf("Clicked element %q", selector), nil, nil
}

func (s *Session) elementText(_ context.Context, args map[string]any, _ capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	selector := str(args, "selector")
	el, err := page.Timeout(10 * time.Second).Element(selector)
	if err != nil {
		return fmt.Sprintf("Element not found: %s", selector), nil, nil
	}
	text, err := el.Text()
	if err != nil {
		return "", nil, fmt.Errorf("read text of %s: %w", selector, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Sprintf("No text content found for element %q.", selector), "", nil
	}
	return fmt.Sprintf("Text content of %q: %s", selector, text), text, nil
}

func (s *Session) screenshot(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	filename := str(args, "filename")
	if filename == "" {
		filename = "screenshot.png"
	}
	if !filepath.IsAbs(filename) && env.WorkDir != "" {
		filename = filepath.Join(env.WorkDir, filename)
	}
	data, err := page.Screenshot(false, nil)
	if err != nil {
		return "", nil, fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("save screenshot to %s: %w", filename, err)
	}
	return fmt.Sprintf("Screenshot saved to: %s", filename), filename, nil
}

func (s *Session) waitForSelector(_ context.Context, args map[string]any, _ capability.Env) (string, any, error) {
	page := s.currentPage()
	if page == nil {
		return notLaunched, nil, nil
	}
	selector := str(args, "selector")
	timeoutMS, _ := args["timeout_ms"].(int)
	if timeoutMS <= 0 {
		timeoutMS = 10000
	}
	timeout := time.Duration(timeoutMS) * time.Millisecond
	if _, err := page.Timeout(timeout).Element(selector); err != nil {
		return fmt.Sprintf("Element with selector %q did not appear within %s.", selector, timeout), false, nil
	}
	return fmt.Sprintf("Element with selector %q appeared.", selector), true, nil
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
