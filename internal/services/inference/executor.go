package inference

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, c Command, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", c.Binary, err)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	forward := func(line string) {
		if onLine == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onLine(line)
	}
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		// Drain so the child never blocks on a full pipe after a long line.
		_, _ = io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	err = cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("wait %s: %w", c.Binary, err)
	}
	return 0, nil
}
