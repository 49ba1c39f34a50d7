// Package exporter snapshots the local databases into a version-controlled
// replication workspace for cross-machine sharing.
package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const attributesFile = `*.db filter=lfs diff=lfs merge=lfs -text
`

const readmeFile = `# claude-mem replication workspace

Snapshots of the local memory databases, committed for cross-machine
sharing. Managed by the claude-mem worker; do not edit by hand.
`

// Exporter owns the replication workspace.
type Exporter struct {
	dir        string
	remoteName string
	remoteURL  string
	autoPush   bool
	idlePush   time.Duration
	logger     *slog.Logger
}

// New creates an exporter rooted at the replication directory.
func New(dir, remoteName, remoteURL string, autoPush bool, idlePushSeconds int, logger *slog.Logger) *Exporter {
	if remoteName == "" {
		remoteName = "origin"
	}
	return &Exporter{
		dir:        dir,
		remoteName: remoteName,
		remoteURL:  remoteURL,
		autoPush:   autoPush,
		idlePush:   time.Duration(idlePushSeconds) * time.Second,
		logger:     logger,
	}
}

// Dir returns the replication workspace path.
func (e *Exporter) Dir() string { return e.dir }

// EnsureWorkspace initializes the replication directory on first use:
// create it, init a repository, install the large-binary tracking
// attributes for *.db, and write the README.
func (e *Exporter) EnsureWorkspace() (*git.Repository, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	repo, err := git.PlainOpen(e.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(e.dir, false)
		if err != nil {
			return nil, fmt.Errorf("init export repo: %w", err)
		}
		e.logger.Info("initialized replication workspace", "dir", e.dir)
	} else if err != nil {
		return nil, fmt.Errorf("open export repo: %w", err)
	}

	attrPath := filepath.Join(e.dir, ".gitattributes")
	if _, err := os.Stat(attrPath); os.IsNotExist(err) {
		if err := os.WriteFile(attrPath, []byte(attributesFile), 0o644); err != nil {
			return nil, fmt.Errorf("write attributes: %w", err)
		}
	}
	readmePath := filepath.Join(e.dir, "README.md")
	if _, err := os.Stat(readmePath); os.IsNotExist(err) {
		if err := os.WriteFile(readmePath, []byte(readmeFile), 0o644); err != nil {
			return nil, fmt.Errorf("write readme: %w", err)
		}
	}

	if e.remoteURL != "" {
		if _, err := repo.Remote(e.remoteName); errors.Is(err, git.ErrRemoteNotFound) {
			_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
				Name: e.remoteName,
				URLs: []string{e.remoteURL},
			})
			if err != nil {
				return nil, fmt.Errorf("create remote: %w", err)
			}
		}
	}
	return repo, nil
}

// metadata is the snapshot manifest written next to the database copies.
type metadata struct {
	ExportedAt string `json:"exportedAt"`
	SourceFile string `json:"sourceFile"`
	SizeBytes  int64  `json:"sizeBytes"`
	Hostname   string `json:"hostname"`
	Platform   string `json:"platform"`
}

// Snapshot copies the vector database (and optionally the full relational
// database) into the workspace, writes metadata.json, and commits. When a
// remote is configured and push is requested, the commit is pushed.
func (e *Exporter) Snapshot(vectorDBPath, fullDBPath string, push bool) error {
	repo, err := e.EnsureWorkspace()
	if err != nil {
		return err
	}

	size, err := copyFile(vectorDBPath, filepath.Join(e.dir, "vectors.db"))
	if err != nil {
		return fmt.Errorf("copy vector db: %w", err)
	}
	if fullDBPath != "" {
		if _, err := copyFile(fullDBPath, filepath.Join(e.dir, "full-export.db")); err != nil {
			return fmt.Errorf("copy full db: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	meta := metadata{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		SourceFile: filepath.Base(vectorDBPath),
		SizeBytes:  size,
		Hostname:   hostname,
		Platform:   runtime.GOOS,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.dir, "metadata.json"), metaData, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	committed, err := e.commitAll(repo, "snapshot "+meta.ExportedAt)
	if err != nil {
		return err
	}
	if !committed {
		e.logger.Info("snapshot unchanged, nothing to commit")
		return nil
	}

	if push && e.remoteURL != "" {
		if err := e.push(repo); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) commitAll(repo *git.Repository, message string) (bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, fmt.Errorf("stage snapshot: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "claude-mem",
			Email: "claude-mem@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, fmt.Errorf("commit snapshot: %w", err)
	}
	return true, nil
}

func (e *Exporter) push(repo *git.Repository) error {
	err := repo.Push(&git.PushOptions{RemoteName: e.remoteName})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	e.logger.Info("pushed snapshot", "remote", e.remoteName)
	return nil
}

// Push commits pending changes (if any) and pushes to the remote.
func (e *Exporter) Push() error {
	repo, err := e.EnsureWorkspace()
	if err != nil {
		return err
	}
	if _, err := e.commitAll(repo, "manual push "+time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return e.push(repo)
}

// Pull fetches and merges the remote state into the workspace.
func (e *Exporter) Pull() error {
	repo, err := e.EnsureWorkspace()
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	err = wt.Pull(&git.PullOptions{RemoteName: e.remoteName})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull workspace: %w", err)
	}
	return nil
}

// HasPendingChanges reports whether the workspace has uncommitted or
// unstaged content.
func (e *Exporter) HasPendingChanges() (bool, error) {
	repo, err := git.PlainOpen(e.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open export repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return !status.IsClean(), nil
}

// ShouldAutoPush returns true iff auto-push is enabled, there are pending
// local changes, and the session has been idle for the configured window.
func (e *Exporter) ShouldAutoPush(lastActivity time.Time) bool {
	if !e.autoPush {
		return false
	}
	pending, err := e.HasPendingChanges()
	if err != nil || !pending {
		return false
	}
	return time.Since(lastActivity) >= e.idlePush
}

// Status summarizes the workspace for the git-sync CLI.
func (e *Exporter) Status() (string, error) {
	repo, err := git.PlainOpen(e.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "not initialized", nil
	}
	if err != nil {
		return "", fmt.Errorf("open export repo: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}

	remote := "no remote"
	if _, err := repo.Remote(e.remoteName); err == nil {
		remote = "remote " + e.remoteName
	}
	if status.IsClean() {
		return fmt.Sprintf("clean, %s", remote), nil
	}
	return fmt.Sprintf("%d pending change(s), %s", len(status), remote), nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Sync()
}
