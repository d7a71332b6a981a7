package socket

import (
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ProcessChecker reports whether a process is running.
type ProcessChecker interface {
	Running(name string) bool
}

// PSChecker looks for processes in the OS process table.
type PSChecker struct {
	list func() ([]ps.Process, error)
}

var _ ProcessChecker = (*PSChecker)(nil)

// NewProcessChecker returns a PSChecker reading the live process table.
func NewProcessChecker() *PSChecker {
	return &PSChecker{list: ps.Processes}
}

// Running reports whether any process executable is named name,
// ignoring case. Truncated names, as some platforms report them, match
// when they are a prefix of name.
func (c *PSChecker) Running(name string) bool {
	procs, err := c.list()
	if err != nil {
		return false
	}
	for _, p := range procs {
		exe := filepath.Base(p.Executable())
		if exe == "" || exe == "." {
			continue
		}
		if strings.EqualFold(exe, name) {
			return true
		}
		if len(exe) >= 15 && len(exe) < len(name) && strings.EqualFold(exe, name[:len(exe)]) {
			return true
		}
	}
	return false
}
