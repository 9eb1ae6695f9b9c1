package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// Options selects how a session is acquired. With an empty CDPURL a local
// browser is launched.
type Options struct {
	CDPURL            string
	Headers           map[string]string
	Launch            LaunchOptions
	NavigationTimeout time.Duration
	Logger            *slog.Logger
}

type BrowserSession struct {
	CDPURL         string
	Headers        map[string]string
	client         *CDPClient
	sessionManager *SessionManager
	process        *Process
	logger         *slog.Logger
	focusTarget    string
	ownedTarget    string
	closeOnce      sync.Once
	closeErr       error

	NavigationTimeout time.Duration
}

func NewBrowserSession(cdpURL string, headers map[string]string, logger *slog.Logger) *BrowserSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSession{
		CDPURL:  cdpURL,
		Headers: headers,
		logger:  logger,
	}
}

// Acquire returns a connected session with a focused page. The caller owns
// the session and must Close it.
func Acquire(ctx context.Context, opts Options) (*BrowserSession, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CDPURL != "" {
		bs := NewBrowserSession(opts.CDPURL, opts.Headers, logger)
		bs.NavigationTimeout = opts.NavigationTimeout
		if err := bs.connect(ctx, true); err != nil {
			_ = bs.Close()
			return nil, fmt.Errorf("connect to %s: %w", opts.CDPURL, err)
		}
		return bs, nil
	}

	launch := opts.Launch
	if launch.Logger == nil {
		launch.Logger = logger
	}
	proc, err := Launch(ctx, launch)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	bs := NewBrowserSession(proc.WebSocketURL, opts.Headers, logger)
	bs.process = proc
	bs.NavigationTimeout = opts.NavigationTimeout
	if err := bs.connect(ctx, false); err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("connect to launched browser: %w", err)
	}
	return bs, nil
}

// Connect attaches to the browser at CDPURL and focuses its first page,
// creating one when none exists.
func (bs *BrowserSession) Connect(ctx context.Context) error {
	return bs.connect(ctx, false)
}

func (bs *BrowserSession) connect(ctx context.Context, freshPage bool) error {
	if bs.CDPURL == "" {
		return errors.New("cdp url required")
	}
	resolvedURL, err := bs.resolveWebSocketURL(ctx, bs.CDPURL)
	if err != nil {
		return err
	}
	bs.CDPURL = resolvedURL
	headers := http.Header{}
	for key, value := range bs.Headers {
		headers.Set(key, value)
	}
	bs.client = NewCDPClient(resolvedURL, headers, bs.logger)
	if err := bs.client.Start(ctx); err != nil {
		return err
	}
	bs.sessionManager = NewSessionManager(bs.client, bs.logger)
	if err := bs.sessionManager.StartMonitoring(ctx); err != nil {
		return err
	}
	_, err = bs.client.Send(ctx, "Target.setAutoAttach", map[string]any{"autoAttach": true, "waitForDebuggerOnStart": false, "flatten": true}, "")
	if err != nil {
		return err
	}

	pageTargets := bs.sessionManager.GetAllPageTargets()
	if freshPage || len(pageTargets) == 0 {
		page, err := bs.NewPage(ctx, "about:blank")
		if err != nil {
			return err
		}
		bs.ownedTarget = page.targetID
		_, err = bs.GetOrCreateSession(ctx, page.targetID, true)
		return err
	}
	_, err = bs.GetOrCreateSession(ctx, pageTargets[0].TargetID, true)
	return err
}

func (bs *BrowserSession) resolveWebSocketURL(ctx context.Context, cdpURL string) (string, error) {
	if strings.HasPrefix(cdpURL, "ws") {
		return cdpURL, nil
	}
	parsed, err := url.Parse(cdpURL)
	if err != nil {
		return "", err
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	if !strings.HasSuffix(parsed.Path, "/json/version") {
		parsed.Path = path.Join(parsed.Path, "/json/version")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	for key, value := range bs.Headers {
		request.Header.Set(key, value)
	}
	resp, err := client.Do(request)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", parsed.String(), resp.Status)
	}
	var payload struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("webSocketDebuggerUrl missing from response")
	}
	return payload.WebSocketDebuggerURL, nil
}

func (bs *BrowserSession) GetOrCreateSession(ctx context.Context, targetID string, focus bool) (*CDPSession, error) {
	if bs.sessionManager == nil {
		return nil, errors.New("session manager not initialized")
	}
	if targetID == "" {
		return nil, errors.New("target id required")
	}
	session := bs.sessionManager.GetSessionForTarget(targetID)
	if session == nil {
		waited, err := bs.sessionManager.WaitForSession(ctx, targetID, 500*time.Millisecond)
		if err != nil {
			if _, err := bs.client.Send(ctx, "Target.attachToTarget", map[string]any{"targetId": targetID, "flatten": true}, ""); err != nil {
				return nil, err
			}
			waited, err = bs.sessionManager.WaitForSession(ctx, targetID, 2*time.Second)
			if err != nil {
				return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
			}
		}
		session = waited
	}
	if focus {
		bs.focusTarget = targetID
		_, _ = bs.client.Send(ctx, "Target.activateTarget", map[string]any{"targetId": targetID}, "")
	}
	return session, nil
}

func (bs *BrowserSession) NewPage(ctx context.Context, url string) (*Page, error) {
	if url == "" {
		url = "about:blank"
	}
	result, err := bs.client.Send(ctx, "Target.createTarget", map[string]any{"url": url}, "")
	if err != nil {
		return nil, err
	}
	targetID := result.Get("targetId").String()
	if targetID == "" {
		return nil, errors.New("targetId missing")
	}
	return &Page{browser: bs, targetID: targetID}, nil
}

func (bs *BrowserSession) navigationTimeout() time.Duration {
	if bs.NavigationTimeout > 0 {
		return bs.NavigationTimeout
	}
	return DefaultNavigationTimeout
}

// CurrentPage returns the focused page, or nil before Connect.
func (bs *BrowserSession) CurrentPage() *Page {
	if bs.focusTarget == "" {
		return nil
	}
	return &Page{browser: bs, targetID: bs.focusTarget}
}

func (bs *BrowserSession) ClosePage(ctx context.Context, targetID string) error {
	_, err := bs.client.Send(ctx, "Target.closeTarget", map[string]any{"targetId": targetID}, "")
	return err
}

// Close releases everything the session acquired: the page it created on a
// remote browser, the websocket, and a launched browser process. Only the
// first call does any work.
func (bs *BrowserSession) Close() error {
	bs.closeOnce.Do(func() {
		var errs []error
		if bs.client != nil {
			if bs.ownedTarget != "" && bs.process == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := bs.ClosePage(ctx, bs.ownedTarget); err != nil && !errors.Is(err, ErrClientClosed) {
					errs = append(errs, err)
				}
				cancel()
			}
			if err := bs.client.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if bs.process != nil {
			if err := bs.process.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		bs.closeErr = errors.Join(errs...)
		bs.logger.Debug("browser session closed", "error", bs.closeErr)
	})
	return bs.closeErr
}
