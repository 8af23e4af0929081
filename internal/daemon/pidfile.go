// Package daemon tracks the background API server through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrRunning is returned by Acquire when a live process already owns the file.
var ErrRunning = errors.New("already running")

// PIDFile records which process serves the API.
type PIDFile struct {
	Path string
}

func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// IsRunning reports the recorded PID and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, alive(pid)
}

// Stop asks the recorded process to exit and kills it if it is still alive
// after grace. killed reports whether the kill was needed. The file is
// removed either way.
func (p *PIDFile) Stop(grace time.Duration) (killed bool, err error) {
	pid, err := p.Read()
	if err != nil {
		return false, fmt.Errorf("read PID file: %w", err)
	}
	if err := terminate(pid); err != nil {
		return false, fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	if !p.WaitExit(grace) {
		if err := kill(pid); err != nil {
			return true, fmt.Errorf("kill pid %d: %w", pid, err)
		}
		killed = true
		p.WaitExit(grace)
	}
	_ = p.Remove()
	return killed, nil
}

// Acquire claims the file for the current process. A file left by a dead
// process is replaced; one owned by a live process other than this one
// yields ErrRunning.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("pid %d: %w", pid, ErrRunning)
	}
	return p.Write()
}

// Release removes the file if it still names the current process.
func (p *PIDFile) Release() {
	if pid, err := p.Read(); err == nil && pid == os.Getpid() {
		_ = p.Remove()
	}
}

// WaitExit polls until the recorded process is gone or timeout elapses.
func (p *PIDFile) WaitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if _, running := p.IsRunning(); !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}
