package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/steamidle/internal/paths"
)

// ///////////////////////////////////////////////
// PID Lock
// ///////////////////////////////////////////////

// errAlreadyRunning is returned by acquirePID when another instance holds
// the lock.
var errAlreadyRunning = errors.New("steamidle is already running")

// pidLock is the held PID file. The file stays open so the advisory lock
// lives as long as the process.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

func newPIDToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// acquirePID locks dir's PID file and writes "PID:TOKEN" into it. When the
// lock is held elsewhere the error wraps errAlreadyRunning and names the
// owner's pid if it can be read.
func acquirePID(dir paths.DataDir) (*pidLock, error) {
	path := dir.PID()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if pid := readPID(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d)", errAlreadyRunning, pid)
		}
		return nil, errAlreadyRunning
	}

	l := &pidLock{path: path, token: newPIDToken(), f: f}
	if err := f.Truncate(0); err != nil {
		l.unlock()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), l.token); err != nil {
		l.unlock()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return l, nil
}

// Release unlocks the file and removes it if it still carries this
// instance's token.
func (l *pidLock) Release() {
	if l == nil {
		return
	}
	l.unlock()
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == l.token {
		os.Remove(l.path)
	}
}

func (l *pidLock) unlock() {
	if l.f == nil {
		return
	}
	_ = unlockFile(l.f)
	l.f.Close()
	l.f = nil
}

// readPID returns the pid recorded in path, or 0.
func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return pid
}
