package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

type LaunchOptions struct {
	ExecPath     string
	Headless     bool
	WindowWidth  int
	WindowHeight int
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Process is a locally launched browser.
type Process struct {
	WebSocketURL string
	launcher     *launcher.Launcher
	logger       *slog.Logger
}

// FindChrome returns the first Chrome or Chromium binary found on the system.
func FindChrome() (string, error) {
	if path, ok := launcher.LookPath(); ok {
		return path, nil
	}
	return "", errors.New("no chrome or chromium executable found; set CHROME_PATH")
}

func newLauncher(opts LaunchOptions, execPath string) *launcher.Launcher {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	l := launcher.New().
		Bin(execPath).
		Headless(opts.Headless).
		Set(flags.Flag("window-size"), strconv.Itoa(width)+","+strconv.Itoa(height)).
		Set(flags.Flag("password-store"), "basic").
		Set(flags.Flag("disable-extensions"))
	if os.Geteuid() == 0 {
		l = l.NoSandbox(true)
	}
	return l
}

// Launch starts a browser with a throwaway profile and waits for its DevTools
// endpoint.
func Launch(ctx context.Context, opts LaunchOptions) (*Process, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	execPath := opts.ExecPath
	if execPath == "" {
		found, err := FindChrome()
		if err != nil {
			return nil, err
		}
		execPath = found
	}
	startTimeout := opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 20 * time.Second
	}

	l := newLauncher(opts, execPath)
	proc := &Process{launcher: l, logger: logger}
	type launched struct {
		url string
		err error
	}
	done := make(chan launched, 1)
	go func() {
		url, err := l.Launch()
		done <- launched{url: url, err: err}
	}()

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			l.Kill()
			_ = os.RemoveAll(l.Get(flags.UserDataDir))
			return nil, fmt.Errorf("start %s: %w", execPath, res.err)
		}
		proc.WebSocketURL = res.url
		logger.Info("launched browser", "path", execPath, "pid", l.PID(), "headless", opts.Headless)
		return proc, nil
	case <-timer.C:
		_ = proc.Close()
		return nil, fmt.Errorf("browser did not report a devtools endpoint within %s", startTimeout)
	case <-ctx.Done():
		_ = proc.Close()
		return nil, ctx.Err()
	}
}

// Close kills the browser and removes its profile directory. It is safe to
// call more than once.
func (p *Process) Close() error {
	if p == nil || p.launcher == nil {
		return nil
	}
	l := p.launcher
	p.launcher = nil
	l.Kill()
	cleaned := make(chan struct{})
	go func() {
		l.Cleanup()
		close(cleaned)
	}()
	select {
	case <-cleaned:
	case <-time.After(5 * time.Second):
		p.logger.Warn("browser did not exit after kill", "pid", l.PID())
	}
	return nil
}
