package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oisp-sensor/core/pkg/event"
)

// ProcessTreeEnricher walks /proc to resolve a process's parent pid and
// command line, supplementing the envelope's Process slot beyond what the
// capturer itself attributed. Best-effort: any lookup failure leaves the
// event's Process field exactly as the capturer set it.
type ProcessTreeEnricher struct {
	ProcRoot string // defaults to "/proc"; overridable for tests
}

func (p *ProcessTreeEnricher) Name() string { return "process_tree" }

func (p *ProcessTreeEnricher) Enrich(ctx context.Context, ev *event.Event) {
	if ev.Process == nil {
		return
	}
	root := p.ProcRoot
	if root == "" {
		root = "/proc"
	}

	ppid, comm, err := readProcStat(root, ev.Process.PID)
	if err != nil {
		return
	}
	if ev.Process.PPID == nil {
		ev.Process.PPID = &ppid
	}
	if ev.Process.Comm == nil {
		ev.Process.Comm = &comm
	}
	if cmdline, err := readProcCmdline(root, ev.Process.PID); err == nil && ev.Process.CmdLine == nil {
		ev.Process.CmdLine = &cmdline
	}
}

func readProcStat(root string, pid int) (ppid int, comm string, err error) {
	path := fmt.Sprintf("%s/%d/stat", root, pid)
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, "", fmt.Errorf("empty stat file for pid %d", pid)
	}
	line := scanner.Text()

	// comm is the parenthesized field and may itself contain spaces/parens,
	// so split on the last ')' rather than naive whitespace tokenizing.
	open := strings.IndexByte(line, '(')
	closeIdx := strings.LastIndexByte(line, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return 0, "", fmt.Errorf("malformed stat line for pid %d", pid)
	}
	comm = line[open+1 : closeIdx]

	rest := strings.Fields(line[closeIdx+1:])
	if len(rest) < 2 {
		return 0, "", fmt.Errorf("malformed stat fields for pid %d", pid)
	}
	ppidVal, err := strconv.Atoi(rest[1]) // state, ppid
	if err != nil {
		return 0, "", err
	}
	return ppidVal, comm, nil
}

func readProcCmdline(root string, pid int) (string, error) {
	path := fmt.Sprintf("%s/%d/cmdline", root, pid)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(strings.TrimRight(string(raw), "\x00"), "\x00", " "), nil
}
