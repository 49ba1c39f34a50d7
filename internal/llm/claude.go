package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// ProcessSpawner starts a prepared child process and registers its PID
// with the subprocess supervisor before returning. The session id ties the
// child's lifetime to its session.
type ProcessSpawner interface {
	Start(sessionDBID int64, cmd *exec.Cmd) error
}

// ClaudeProvider drives the claude CLI's session API. The CLI keeps the
// conversation server-side, so after the first call only the newest user
// message is sent, resuming by session id. Every spawn goes through the
// supervisor's spawner so orphans are bounded.
type ClaudeProvider struct {
	binary      string
	sessionDBID int64
	spawner     ProcessSpawner

	sessionID string
}

// NewClaudeProvider creates a provider bound to one capture session.
func NewClaudeProvider(binary string, sessionDBID int64, spawner ProcessSpawner) *ClaudeProvider {
	return &ClaudeProvider{
		binary:      binary,
		sessionDBID: sessionDBID,
		spawner:     spawner,
	}
}

// Name returns "claude".
func (p *ClaudeProvider) Name() string { return "claude" }

// claudeResult is the CLI's JSON output envelope.
type claudeResult struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
}

// Complete runs one turn. On the first call the system message rides along
// via --append-system-prompt and the CLI's session id is captured; later
// calls resume that session with only the latest user message.
func (p *ClaudeProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("empty conversation")
	}

	last := messages[len(messages)-1]
	args := []string{"-p", "--output-format", "json"}

	if p.sessionID == "" {
		for _, msg := range messages {
			if msg.Role == RoleSystem {
				args = append(args, "--append-system-prompt", msg.Content)
				break
			}
		}
	} else {
		args = append(args, "--resume", p.sessionID)
	}
	args = append(args, last.Content)

	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := p.spawner.Start(p.sessionDBID, cmd); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("start claude: %w", err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, &ProviderError{
				Provider: p.Name(),
				Err:      fmt.Errorf("claude exited: %w: %s", err, truncateForLog(stderr.String(), 500)),
			}
		}
	}

	var result claudeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode claude output: %w", err)}
	}
	if result.IsError {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: 400, Err: fmt.Errorf("%s", truncateForLog(result.Result, 500))}
	}

	if result.SessionID != "" {
		p.sessionID = result.SessionID
	}
	return &Response{Text: result.Result, SessionID: result.SessionID}, nil
}
