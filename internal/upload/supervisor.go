// supervisor.go provides process liveness and termination primitives for
// detached upload workers.
//
// Liveness is checked two ways: a cheap signal-0 existence probe, and a
// best-effort identity check that inspects the process cmdline for the
// worker marker. The identity check guards against pid reuse: an exited
// worker whose pid was recycled by an unrelated process must not read as
// alive. When cmdline inspection is unavailable (permissions, platform),
// existence alone decides.
package upload

import (
	"errors"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// workerMarker is the argv token identifying an upload worker process.
const workerMarker = "upload-worker"

// Supervisor checks and terminates worker processes by pid.
type Supervisor struct {
	// Grace is how long Terminate waits after SIGTERM before SIGKILL.
	Grace time.Duration

	// Marker overrides workerMarker; used by tests that supervise
	// stand-in processes.
	Marker string
}

// NewSupervisor returns a Supervisor with the recommended 2s grace period.
func NewSupervisor() *Supervisor {
	return &Supervisor{Grace: 2 * time.Second}
}

func (s *Supervisor) marker() string {
	if s.Marker != "" {
		return s.Marker
	}
	return workerMarker
}

// Alive reports whether a process with the given pid exists.
func (s *Supervisor) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}

// AliveWorker reports whether pid exists AND still looks like one of our
// upload workers. A live process whose cmdline lacks the worker marker is
// treated as dead: the original worker exited and the pid was recycled.
func (s *Supervisor) AliveWorker(pid int) bool {
	if !s.Alive(pid) {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	// A zombie still answers signal 0 but is not doing any work.
	if statuses, err := proc.Status(); err == nil {
		for _, st := range statuses {
			if st == process.Zombie {
				return false
			}
		}
	}
	args, err := proc.CmdlineSlice()
	if err != nil || len(args) == 0 {
		// Inspection unavailable; fall back to existence.
		return true
	}
	for _, arg := range args {
		if strings.Contains(arg, s.marker()) {
			return true
		}
	}
	return false
}

// Terminate sends SIGTERM, waits up to the grace period for the process to
// exit, then SIGKILLs it. Already-exited processes are not an error.
func (s *Supervisor) Terminate(pid int) {
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return
	}

	grace := s.Grace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !s.Alive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	syscall.Kill(pid, syscall.SIGKILL)
}
