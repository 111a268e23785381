package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync/atomic"
)

// maxLogLine bounds one logged line of the child's output.
const maxLogLine = 1024 * 1024

// Launcher runs an external web server over the FTP root, for instance
// "php --server 0.0.0.0:8000 --docroot {root}".
type Launcher struct {
	args   []string
	root   string
	logger *log.Logger
}

// NewLauncher splits command on whitespace and substitutes {root}.
func NewLauncher(command, root string, logger *log.Logger) (*Launcher, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("web command is required")
	}
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("web root is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = strings.ReplaceAll(f, "{root}", root)
	}
	return &Launcher{args: args, root: root, logger: logger}, nil
}

// Args returns the resolved command line.
func (l *Launcher) Args() []string {
	out := make([]string, len(l.args))
	copy(out, l.args)
	return out
}

// Run starts the command once and waits for it. The process is killed when ctx is
// cancelled; an exit before that is reported as an error.
func (l *Launcher) Run(ctx context.Context, ready *atomic.Bool) error {
	cmd := exec.CommandContext(ctx, l.args[0], l.args[1:]...)
	cmd.Dir = l.root

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
		for scanner.Scan() {
			l.logger.Printf("DEBUG web: %s", scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			l.logger.Printf("WARN web: output no longer logged: %v", err)
		}
		// The child blocks on a full pipe unless it keeps being read.
		_, _ = io.Copy(io.Discard, pr)
	}()

	if err := cmd.Start(); err != nil {
		pw.Close()
		<-done
		return fmt.Errorf("start %s: %w", l.args[0], err)
	}
	ready.Store(true)
	l.logger.Printf("INFO web server started: %s (pid %d)", strings.Join(l.args, " "), cmd.Process.Pid)

	err := cmd.Wait()
	ready.Store(false)
	pw.Close()
	<-done

	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s exited: %w", l.args[0], err)
	}
	return fmt.Errorf("%s exited", l.args[0])
}
