// Package inspect runs interpreters to learn their version, prefix and
// bitness. Process launches go through a bounded task pool, results are
// memoized per binary and concurrent requests for one binary share a run.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"pyenvs/internal/logx"
	"pyenvs/internal/taskpool"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultMemoSize = 256
)

// ErrNotResolved means the interpreter could not be run or its output could
// not be understood.
var ErrNotResolved = errors.New("interpreter could not be resolved")

// Request names the interpreter to inspect.
type Request struct {
	Executable string
	// CondaPrefix, when set, allows a `conda run` retry if running the
	// executable directly fails.
	CondaPrefix string
}

// Options configures an Inspector.
type Options struct {
	Runner      Runner
	Workers     int
	Timeout     time.Duration
	MemoSize    int
	CondaBinary string
	Logger      *log.Logger
}

// Inspector inspects interpreters.
type Inspector struct {
	runner  Runner
	timeout time.Duration
	conda   string
	logger  *log.Logger

	pool  *taskpool.Pool[Request, *Info]
	memo  *lru.Cache[string, *Info]
	group singleflight.Group
}

// New creates an Inspector and starts its workers. Call Close to stop them.
func New(opts Options) (*Inspector, error) {
	if opts.Runner == nil {
		opts.Runner = CmdRunner{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = defaultMemoSize
	}
	memo, err := lru.New[string, *Info](opts.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("create inspect memo: %w", err)
	}

	in := &Inspector{
		runner:  opts.Runner,
		timeout: opts.Timeout,
		conda:   opts.CondaBinary,
		logger:  logx.Component(opts.Logger, "inspect"),
		memo:    memo,
	}
	in.pool = taskpool.New(in.run, opts.Workers)
	return in, nil
}

// Close stops the worker pool. Queued requests fail with taskpool.ErrStopped.
func (in *Inspector) Close() {
	in.pool.Stop()
}

// Inspect returns the interpreter's self-reported details. Front requests
// jump ahead of queued background work.
func (in *Inspector) Inspect(ctx context.Context, req Request, pos taskpool.Position) (*Info, error) {
	key, err := memoKey(req.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotResolved, err)
	}
	if info, ok := in.memo.Get(key); ok {
		return info, nil
	}

	// Front callers get their own flight so they never wait on a job that
	// is still parked at the back of the queue.
	flight := key
	if pos == taskpool.Front {
		flight += "|front"
	}
	ch := in.group.DoChan(flight, func() (any, error) {
		return in.pool.AddToQueue(req, pos).Wait(context.Background())
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Info), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget drops any memoized result for executable.
func (in *Inspector) Forget(executable string) {
	if key, err := memoKey(executable); err == nil {
		in.memo.Remove(key)
	}
}

func memoKey(executable string) (string, error) {
	fi, err := os.Stat(executable)
	if err != nil {
		return "", err
	}
	return executable + "|" + strconv.FormatInt(fi.ModTime().UnixNano(), 10), nil
}

func (in *Inspector) run(ctx context.Context, req Request) (*Info, error) {
	key, keyErr := memoKey(req.Executable)
	if keyErr == nil {
		if info, ok := in.memo.Get(key); ok {
			return info, nil
		}
	}

	info, err := in.runDirect(ctx, req.Executable)
	if err != nil && req.CondaPrefix != "" && in.conda != "" {
		in.logger.Debug("retrying through conda run", "path", req.Executable, "err", err)
		info, err = in.runConda(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if keyErr == nil {
		in.memo.Add(key, info)
	}
	return info, nil
}

func (in *Inspector) runDirect(ctx context.Context, executable string) (*Info, error) {
	return in.exec(ctx, executable, executable, []string{"-I", "-c", infoScript})
}

func (in *Inspector) runConda(ctx context.Context, req Request) (*Info, error) {
	args := []string{"run", "-p", req.CondaPrefix, "--no-capture-output", "python", "-c", infoScript}
	return in.exec(ctx, req.Executable, in.conda, args)
}

func (in *Inspector) exec(ctx context.Context, executable, command string, args []string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	start := time.Now()
	result, runErr := in.runner.Run(ctx, command, args, RunOptions{})
	if runErr != nil || result.ExitCode != 0 {
		in.logger.Debug("interpreter exited abnormally",
			"path", executable, "exit", result.ExitCode, "err", runErr, "stderr", string(result.Stderr))
		return nil, fmt.Errorf("%w: %s exited with code %d", ErrNotResolved, executable, result.ExitCode)
	}

	info, err := ParseOutput(result.Stdout)
	if err != nil {
		in.logger.Debug("unparsable interpreter output", "path", executable, "err", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotResolved, executable, err)
	}
	info.Executable = executable
	in.logger.Debug("inspected interpreter", "path", executable, "version", info.Version.String(), "elapsed", time.Since(start))
	return info, nil
}
