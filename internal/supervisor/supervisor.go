// Package supervisor tracks every child process spawned by extractor
// sessions and bounds their lifetime even across worker crashes.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Supervisor is the registry mapping session ids to the PIDs of their
// extractor children. All map mutations are short critical sections under
// one mutex.
type Supervisor struct {
	childPattern string
	logger       *slog.Logger

	mu        sync.Mutex
	observers map[int64]map[int32]bool
}

// New creates a supervisor. childPattern is the command-line substring that
// identifies extractor children in the process table.
func New(childPattern string, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		childPattern: childPattern,
		logger:       logger,
		observers:    make(map[int64]map[int32]bool),
	}
}

// SnapshotChildPids returns the current OS-level child PIDs of the worker,
// read from the process table.
func (s *Supervisor) SnapshotChildPids() ([]int32, error) {
	self := int32(os.Getpid())

	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("read process table: %w", err)
	}

	var children []int32
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		if ppid == self {
			children = append(children, p.Pid)
		}
	}
	return children, nil
}

// RegisterObservers union-adds PIDs to a session's set.
func (s *Supervisor) RegisterObservers(sessionDBID int64, pids []int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.observers[sessionDBID]
	if set == nil {
		set = make(map[int32]bool)
		s.observers[sessionDBID] = set
	}
	for _, pid := range pids {
		set[pid] = true
	}
}

// RegisteredPids returns the PIDs currently registered for a session.
func (s *Supervisor) RegisteredPids(sessionDBID int64) []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pids []int32
	for pid := range s.observers[sessionDBID] {
		pids = append(pids, pid)
	}
	return pids
}

// KillSessionObservers soft-terminates each of a session's PIDs, polls up
// to 3 seconds for them to exit, hard-kills survivors, and removes the
// session from the registry. PIDs that are already dead are silently
// ignored; individual kill failures are logged and absorbed.
func (s *Supervisor) KillSessionObservers(sessionDBID int64) {
	s.mu.Lock()
	set := s.observers[sessionDBID]
	delete(s.observers, sessionDBID)
	s.mu.Unlock()

	if len(set) == 0 {
		return
	}

	pids := make([]int32, 0, len(set))
	for pid := range set {
		pids = append(pids, pid)
	}
	s.killPids(pids)
}

func (s *Supervisor) killPids(pids []int32) {
	for _, pid := range pids {
		p, err := process.NewProcess(pid)
		if err != nil {
			continue // already gone
		}
		if err := p.Terminate(); err != nil {
			s.logger.Debug("soft-terminate failed", "pid", pid, "error", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		alive := false
		for _, pid := range pids {
			if exists, _ := process.PidExists(pid); exists {
				alive = true
				break
			}
		}
		if !alive {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, pid := range pids {
		if exists, _ := process.PidExists(pid); !exists {
			continue
		}
		p, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		if err := p.Kill(); err != nil {
			s.logger.Warn("hard-kill failed", "pid", pid, "error", err)
		}
	}
}

// KillAll kills every registered session's observers in parallel.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	sessions := make([]int64, 0, len(s.observers))
	for id := range s.observers {
		sessions = append(sessions, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range sessions {
		wg.Add(1)
		go func(sessionID int64) {
			defer wg.Done()
			s.KillSessionObservers(sessionID)
		}(id)
	}
	wg.Wait()
}

// PruneDeadPids removes PIDs that no longer exist in the OS process table
// and returns the count pruned. A session emptied by pruning is removed.
func (s *Supervisor) PruneDeadPids() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for sessionID, set := range s.observers {
		for pid := range set {
			if exists, _ := process.PidExists(pid); !exists {
				delete(set, pid)
				pruned++
			}
		}
		if len(set) == 0 {
			delete(s.observers, sessionID)
		}
	}
	return pruned
}

// FindUnregisteredObservers scans the process table for processes whose
// command line matches the extractor child pattern and that are not in the
// registry. These are orphans from a crashed worker or a leaked spawn.
func (s *Supervisor) FindUnregisteredObservers() ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("read process table: %w", err)
	}

	s.mu.Lock()
	registered := make(map[int32]bool)
	for _, set := range s.observers {
		for pid := range set {
			registered[pid] = true
		}
	}
	s.mu.Unlock()

	self := int32(os.Getpid())
	var orphans []int32
	for _, p := range procs {
		if p.Pid == self || registered[p.Pid] {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, s.childPattern) {
			orphans = append(orphans, p.Pid)
		}
	}
	return orphans, nil
}
