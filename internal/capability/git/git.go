// Package git 提供面向版本库的能力集，基于 go-git 实现，
// 不依赖外部 git 可执行文件。仓库路径取自执行环境的工作目录。
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
)

// Set 返回版本库能力集。
func Set() []capability.Capability {
	return []capability.Capability{
		{
			Name:        "git_status",
			Description: "Show the working tree status of the repository.",
			Invoke:      gitStatus,
		},
		{
			Name:        "git_add",
			Description: "Stage files for the next commit; '.' stages everything.",
			Params: []capability.Param{
				{Name: "files", Type: "string", Default: "."},
			},
			Invoke: gitAdd,
		},
		{
			Name:        "git_commit",
			Description: "Commit the staged changes with the given message.",
			Params: []capability.Param{
				{Name: "message", Type: "string", Required: true},
			},
			Invoke: gitCommit,
		},
		{
			Name:        "git_log",
			Description: "Show the most recent commits.",
			Params: []capability.Param{
				{Name: "num_commits", Type: "int", Default: 5},
			},
			Invoke: gitLog,
		},
		{
			Name:        "git_create_branch",
			Description: "Create a new branch pointing at the current HEAD.",
			Params: []capability.Param{
				{Name: "branch_name", Type: "string", Required: true},
			},
			Invoke: gitCreateBranch,
		},
		{
			Name:        "git_checkout",
			Description: "Switch the working tree to the given branch.",
			Params: []capability.Param{
				{Name: "branch_name", Type: "string", Required: true},
			},
			Invoke: gitCheckout,
		},
		{
			Name:        "git_init",
			Description: "Initialize a new repository in the working directory.",
			Invoke:      gitInit,
		},
		{
			Name:        "git_revert_last_commit",
			Description: "Discard the last commit after operator confirmation (hard reset to its parent).",
			Invoke:      gitRevertLastCommit,
		},
		{
			Name:        "git_fetch",
			Description: "Fetch the latest changes from the origin remote.",
			Invoke:      gitFetch,
		},
		{
			Name:        "git_pull",
			Description: "Pull changes from a remote branch into the working tree.",
			Params: []capability.Param{
				{Name: "branch", Type: "string", Default: "main"},
				{Name: "remote", Type: "string", Default: "origin"},
			},
			Invoke: gitPull,
		},
		{
			Name:        "git_push",
			Description: "Push local commits to a remote branch.",
			Params: []capability.Param{
				{Name: "branch", Type: "string", Default: "main"},
				{Name: "remote", Type: "string", Default: "origin"},
			},
			Invoke: gitPush,
		},
	}
}

func repoDir(env capability.Env) string {
	if env.WorkDir != "" {
		return env.WorkDir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func openRepo(env capability.Env) (*gogit.Repository, string, error) {
	dir := repoDir(env)
	repo, err := gogit.PlainOpen(dir)
	return repo, dir, err
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func gitStatus(_ context.Context, _ map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", nil, fmt.Errorf("read status: %w", err)
	}
	if status.IsClean() {
		return "Git status: No changes detected. Working tree is clean.", status, nil
	}
	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	lines := make([]string, 0, len(paths))
	for _, path := range paths {
		fs := status[path]
		lines = append(lines, fmt.Sprintf("%c%c %s", fs.Staging, fs.Worktree, path))
	}
	return fmt.Sprintf("Git status:\n%s", strings.Join(lines, "\n")), status, nil
}

func gitAdd(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("open worktree: %w", err)
	}
	files := strings.TrimSpace(str(args, "files"))
	if files == "" || files == "." {
		if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
			return "", nil, fmt.Errorf("stage all changes: %w", err)
		}
		return "Files '.' staged successfully.", nil, nil
	}
	for _, file := range strings.Fields(files) {
		if _, err := wt.Add(file); err != nil {
			return fmt.Sprintf("File not found in worktree: %s", file), nil, nil
		}
	}
	return fmt.Sprintf("Files '%s' staged successfully.", files), nil, nil
}

func gitCommit(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("open worktree: %w", err)
	}
	message := str(args, "message")
	hash, err := wt.Commit(message, &gogit.CommitOptions{Author: defaultSignature()})
	if err != nil {
		if errors.Is(err, gogit.ErrEmptyCommit) {
			return "Nothing to commit: working tree is clean.", nil, nil
		}
		return "", nil, fmt.Errorf("commit: %w", err)
	}
	return fmt.Sprintf("Committed changes with message: '%s' (Hash: %s)", message, hash.String()[:8]), hash.String(), nil
}

// defaultSignature 在仓库未配置身份时提供提交者信息。
func defaultSignature() *object.Signature {
	name := os.Getenv("GIT_AUTHOR_NAME")
	if name == "" {
		name = "automation-agent"
	}
	email := os.Getenv("GIT_AUTHOR_EMAIL")
	if email == "" {
		email = "agent@localhost"
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

func gitLog(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	limit, _ := args["num_commits"].(int)
	if limit <= 0 {
		limit = 5
	}
	iter, err := repo.Log(&gogit.LogOptions{})
	if err != nil {
		return "No commits found.", nil, nil
	}
	defer iter.Close()
	var lines []string
	for len(lines) < limit {
		commit, err := iter.Next()
		if err != nil {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s (%s)",
			commit.Hash.String()[:8],
			strings.SplitN(strings.TrimSpace(commit.Message), "\n", 2)[0],
			commit.Author.Name))
	}
	if len(lines) == 0 {
		return "No commits found.", nil, nil
	}
	return fmt.Sprintf("Last %d commit(s):\n%s", len(lines), strings.Join(lines, "\n")), lines, nil
}

func gitCreateBranch(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	name := strings.TrimSpace(str(args, "branch_name"))
	head, err := repo.Head()
	if err != nil {
		return "No commits found: cannot create a branch before the first commit.", nil, nil
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), head.Hash())
	if _, err := repo.Reference(ref.Name(), false); err == nil {
		return fmt.Sprintf("Branch '%s' already exists.", name), nil, nil
	}
	if err := repo.Storer.SetReference(ref); err != nil {
		return "", nil, fmt.Errorf("create branch %s: %w", name, err)
	}
	return fmt.Sprintf("Branch '%s' created successfully.", name), nil, nil
}

func gitCheckout(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("open worktree: %w", err)
	}
	name := strings.TrimSpace(str(args, "branch_name"))
	branch := plumbing.NewBranchReferenceName(name)
	if _, err := repo.Reference(branch, false); err != nil {
		return fmt.Sprintf("Branch not found: %s", name), nil, nil
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: branch}); err != nil {
		return "", nil, fmt.Errorf("checkout %s: %w", name, err)
	}
	return fmt.Sprintf("Switched to branch '%s'.", name), nil, nil
}

func gitInit(_ context.Context, _ map[string]any, env capability.Env) (string, any, error) {
	dir := repoDir(env)
	if _, err := gogit.PlainInit(dir, false); err != nil {
		if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
			return fmt.Sprintf("Repository already initialized: %s", dir), nil, nil
		}
		return "", nil, fmt.Errorf("init repository: %w", err)
	}
	return "Git repository initialized.", nil, nil
}

func gitRevertLastCommit(_ context.Context, _ map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	head, err := repo.Head()
	if err != nil {
		return "No commits found: nothing to revert.", nil, nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return "Cannot revert: the last commit has no parent.", nil, nil
	}
	if env.Confirm == nil || !env.Confirm(fmt.Sprintf("Discard commit %s and reset to %s?",
		head.Hash().String()[:8], parent.Hash.String()[:8])) {
		return "Revert of last commit cancelled.", nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: parent.Hash, Mode: gogit.HardReset}); err != nil {
		return "", nil, fmt.Errorf("reset to parent: %w", err)
	}
	return "Last commit reverted successfully.", nil, nil
}

func gitFetch(ctx context.Context, _ map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	err = repo.FetchContext(ctx, &gogit.FetchOptions{RemoteName: "origin"})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "Already up to date.", nil, nil
	}
	if err != nil {
		return fmt.Sprintf("Fetch failed: %v", err), nil, nil
	}
	return "Fetched latest changes.", nil, nil
}

func gitPull(ctx context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("open worktree: %w", err)
	}
	remote, branch := str(args, "remote"), str(args, "branch")
	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "Already up to date.", nil, nil
	}
	if err != nil {
		return fmt.Sprintf("Pull from %s/%s failed: %v", remote, branch, err), nil, nil
	}
	return fmt.Sprintf("Pulled changes from %s/%s.", remote, branch), nil, nil
}

func gitPush(ctx context.Context, args map[string]any, env capability.Env) (string, any, error) {
	repo, dir, err := openRepo(env)
	if err != nil {
		return fmt.Sprintf("Not a git repository: %s. Please initialize one first.", dir), nil, nil
	}
	remote, branch := str(args, "remote"), str(args, "branch")
	err = repo.PushContext(ctx, &gogit.PushOptions{RemoteName: remote})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "Everything up to date.", nil, nil
	}
	if err != nil {
		return fmt.Sprintf("Push to %s/%s failed: %v", remote, branch, err), nil, nil
	}
	return fmt.Sprintf("Pushed changes to %s/%s.", remote, branch), nil, nil
}
