package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
	"github.com/mgarg123/ai-single-file-agents/internal/run"
)

// Server 负责暴露 REST 接口，供外部提交与查询运行。
type Server struct {
	addr       string
	runs       *run.Service
	registries map[run.AgentKind]*capability.Registry
}

// NewServer 构造 API 服务实例。registries 以能力集名索引，供目录接口查询。
func NewServer(addr string, runs *run.Service, registries map[run.AgentKind]*capability.Registry) *Server {
	return &Server{addr: addr, runs: runs, registries: registries}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回路由后的处理器，便于测试复用。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/stats", s.handleRunStats)
	mux.HandleFunc("/api/v1/runs/", s.handleRunDetail)
	mux.HandleFunc("/api/v1/capabilities", s.handleCapabilities)
	return mux
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

type submitRunRequest struct {
	ID          string         `json:"id,omitempty"`
	Instruction string         `json:"instruction"`
	Agent       string         `json:"agent,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.runs.Submit(r.Context(), run.SubmitRequest{
		ID:          req.ID,
		Instruction: req.Instruction,
		Agent:       run.AgentKind(req.Agent),
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := s.runs.List(r.Context(), opts...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.runs.Stats(r.Context(), opts...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "运行 ID 不能为空", http.StatusBadRequest)
		return
	}

	found, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// capabilityView 是能力目录接口的序列化形态。
type capabilityView struct {
	Name        string          `json:"name"`
	Signature   string          `json:"signature"`
	Description string          `json:"description"`
	Params      []parameterView `json:"params,omitempty"`
}

type parameterView struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	kind := run.AgentKind(r.URL.Query().Get("agent"))
	if kind == "" {
		kind = run.AgentFile
	}
	registry, ok := s.registries[kind]
	if !ok || registry == nil {
		http.Error(w, "不支持的能力集: "+string(kind), http.StatusBadRequest)
		return
	}

	caps := registry.Catalog()
	views := make([]capabilityView, 0, len(caps))
	for _, c := range caps {
		view := capabilityView{
			Name:        c.Name,
			Signature:   c.Signature(),
			Description: c.Description,
		}
		for _, p := range c.Params {
			view.Params = append(view.Params, parameterView{
				Name:     p.Name,
				Type:     p.Type,
				Required: p.Required,
			})
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// listOptionsFromQuery 解析列表与统计接口共享的查询参数。
func listOptionsFromQuery(r *http.Request) ([]run.ListOption, error) {
	query := r.URL.Query()
	var opts []run.ListOption

	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, stdErrors.New("limit 必须为正整数")
		}
		opts = append(opts, run.WithLimit(parsed))
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, stdErrors.New("offset 必须为非负整数")
		}
		opts = append(opts, run.WithOffset(parsed))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []run.Status
		for _, part := range strings.Split(raw, ",") {
			status := run.Status(strings.TrimSpace(part))
			if status == "" {
				continue
			}
			if !run.IsValidStatus(status) {
				return nil, stdErrors.New("不支持的运行状态: " + string(status))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, run.WithStatuses(statuses...))
	}
	if raw := query.Get("agent"); raw != "" {
		var kinds []run.AgentKind
		for _, part := range strings.Split(raw, ",") {
			kind := run.AgentKind(strings.TrimSpace(part))
			if kind == "" {
				continue
			}
			if !run.IsValidAgent(kind) {
				return nil, stdErrors.New("不支持的能力集: " + string(kind))
			}
			kinds = append(kinds, kind)
		}
		opts = append(opts, run.WithAgents(kinds...))
	}
	if raw := query.Get("updated_gte"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, stdErrors.New("updated_gte 必须为 Unix 时间戳")
		}
		opts = append(opts, run.WithUpdatedSince(time.Unix(parsed, 0)))
	}
	if raw := query.Get("updated_lte"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, stdErrors.New("updated_lte 必须为 Unix 时间戳")
		}
		opts = append(opts, run.WithUpdatedUntil(time.Unix(parsed, 0)))
	}
	if raw := query.Get("has_result"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, stdErrors.New("has_result 必须为布尔值")
		}
		opts = append(opts, run.WithResultPresence(parsed))
	}
	if raw := query.Get("order"); raw != "" {
		switch raw {
		case "asc":
			opts = append(opts, run.WithSortOrder(run.SortByUpdatedAsc))
		case "desc":
			opts = append(opts, run.WithSortOrder(run.SortByUpdatedDesc))
		default:
			return nil, stdErrors.New("order 仅支持 asc/desc")
		}
	}
	if raw := strings.TrimSpace(query.Get("q")); raw != "" {
		opts = append(opts, run.WithQuery(raw))
	}
	return opts, nil
}

// writeServiceError 将服务层错误映射为 HTTP 状态码。
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stdErrors.Is(err, run.ErrRunNotFound):
		status = http.StatusNotFound
	case stdErrors.Is(err, run.ErrRunConflict):
		status = http.StatusConflict
	case xerrors.CodeOf(err) == run.CodeRunValidation:
		status = http.StatusBadRequest
	case xerrors.CodeOf(err) == run.CodeRunPublish:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
