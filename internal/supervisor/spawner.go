package supervisor

import (
	"fmt"
	"os/exec"
)

// Spawner starts child processes and registers them with the supervisor
// before the handle is returned to the caller. This closes the
// orphan-by-crash window to the interval between fork and register, which
// the reaper covers.
type Spawner struct {
	sup *Supervisor
}

// NewSpawner creates a spawner over a supervisor.
func NewSpawner(sup *Supervisor) *Spawner {
	return &Spawner{sup: sup}
}

// Start starts a prepared command and registers its PID under the session.
func (s *Spawner) Start(sessionDBID int64, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	s.sup.RegisterObservers(sessionDBID, []int32{int32(cmd.Process.Pid)})
	return nil
}
