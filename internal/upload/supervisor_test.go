package upload

import (
	"os"
	"os/exec"
	"testing"
	"time"
)

// startSleeper spawns a sleep process that is reaped on exit, mirroring how
// the manager reaps real workers.
func startSleeper(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	go cmd.Wait()
	t.Cleanup(func() { cmd.Process.Kill() })
	return cmd.Process.Pid
}

// waitUntilDead polls until the pid no longer exists.
func waitUntilDead(t *testing.T, sup *Supervisor, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !sup.Alive(pid) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %d still alive", pid)
}

// ---------------------------------------------------------------------------
// Liveness
// ---------------------------------------------------------------------------

func TestAlive(t *testing.T) {
	sup := NewSupervisor()

	if !sup.Alive(os.Getpid()) {
		t.Fatal("our own pid should be alive")
	}
	if sup.Alive(0) || sup.Alive(-1) {
		t.Fatal("non-positive pids are never alive")
	}
}

func TestAliveAfterExit(t *testing.T) {
	sup := NewSupervisor()

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	cmd.Wait()

	if sup.Alive(pid) {
		t.Fatalf("exited process %d should not be alive", pid)
	}
}

// AliveWorker must treat a live process with a foreign cmdline as dead;
// that is exactly the pid-reuse case it exists to catch.
func TestAliveWorkerRejectsForeignProcess(t *testing.T) {
	sup := NewSupervisor()
	pid := startSleeper(t)

	if !sup.Alive(pid) {
		t.Fatalf("sleep process %d should exist", pid)
	}
	if sup.AliveWorker(pid) {
		t.Fatalf("process %d is not an upload worker and must not pass the identity check", pid)
	}
}

func TestAliveWorkerMatchesMarker(t *testing.T) {
	sup := &Supervisor{Grace: time.Second, Marker: "sleep"}
	pid := startSleeper(t)

	if !sup.AliveWorker(pid) {
		t.Fatalf("process %d should match marker 'sleep'", pid)
	}
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

func TestTerminateGraceful(t *testing.T) {
	sup := &Supervisor{Grace: 2 * time.Second, Marker: "sleep"}
	pid := startSleeper(t)

	sup.Terminate(pid)
	waitUntilDead(t, sup, pid)
}

func TestTerminateAlreadyDead(t *testing.T) {
	sup := NewSupervisor()

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	cmd.Wait()

	// Must not panic or block on an already-exited process.
	sup.Terminate(pid)
	sup.Terminate(-1)
}
