package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// NavigationError is returned when the browser reports a failed navigation,
// e.g. net::ERR_CONNECTION_REFUSED.
type NavigationError struct {
	URL  string
	Text string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %s", e.URL, e.Text)
}

type Page struct {
	browser   *BrowserSession
	targetID  string
	sessionID string
}

func (p *Page) ensureSession(ctx context.Context) (string, error) {
	if p.sessionID != "" {
		return p.sessionID, nil
	}
	session, err := p.browser.GetOrCreateSession(ctx, p.targetID, false)
	if err != nil {
		return "", err
	}
	p.sessionID = session.SessionID
	return p.sessionID, nil
}

func (p *Page) send(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	sessionID, err := p.ensureSession(ctx)
	if err != nil {
		return gjson.Result{}, err
	}
	return p.browser.client.Send(ctx, method, params, sessionID)
}

// Goto navigates and waits until the new document is loaded.
func (p *Page) Goto(ctx context.Context, url string) error {
	result, err := p.send(ctx, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return err
	}
	if text := result.Get("errorText").String(); text != "" {
		return &NavigationError{URL: url, Text: text}
	}
	p.browser.logger.Debug("navigated", "url", url, "loader", result.Get("loaderId").String())
	return p.WaitForReadyState(ctx, p.browser.navigationTimeout())
}

func (p *Page) Reload(ctx context.Context) error {
	if _, err := p.send(ctx, "Page.reload", nil); err != nil {
		return err
	}
	return p.WaitForReadyState(ctx, p.browser.navigationTimeout())
}

func (p *Page) Evaluate(ctx context.Context, pageFunction string, args ...any) (string, error) {
	result, err := p.evaluate(ctx, pageFunction, true, args...)
	if err != nil {
		return "", err
	}
	value := result.Get("result.value")
	if !value.Exists() || value.Type == gjson.Null {
		return "", nil
	}
	if value.Type == gjson.String {
		return value.String(), nil
	}
	return value.Raw, nil
}

func (p *Page) evaluate(ctx context.Context, pageFunction string, byValue bool, args ...any) (gjson.Result, error) {
	expression, err := buildExpression(pageFunction, args...)
	if err != nil {
		return gjson.Result{}, err
	}
	params := map[string]any{
		"expression":    expression,
		"returnByValue": byValue,
		"awaitPromise":  true,
	}
	if !byValue {
		params["objectGroup"] = objectGroup
	}
	result, err := p.send(ctx, "Runtime.evaluate", params)
	if err != nil {
		return gjson.Result{}, err
	}
	if exc := result.Get("exceptionDetails"); exc.Exists() {
		text := exc.Get("exception.description").String()
		if text == "" {
			text = exc.Get("text").String()
		}
		return gjson.Result{}, &CDPError{Method: "Runtime.evaluate", Message: text}
	}
	return result, nil
}

func buildExpression(pageFunction string, args ...any) (string, error) {
	pageFunction = strings.TrimSpace(pageFunction)
	argStrings := make([]string, 0, len(args))
	for _, arg := range args {
		encoded, err := json.Marshal(arg)
		if err != nil {
			return "", err
		}
		argStrings = append(argStrings, string(encoded))
	}
	isFunction := strings.HasPrefix(pageFunction, "function") ||
		(strings.HasPrefix(pageFunction, "(") && strings.Contains(pageFunction, "=>"))
	switch {
	case isFunction:
		return fmt.Sprintf("(%s)(%s)", pageFunction, strings.Join(argStrings, ", ")), nil
	case len(args) > 0:
		return fmt.Sprintf("(function(...args){ return (%s); })(%s)", pageFunction, strings.Join(argStrings, ", ")), nil
	default:
		return pageFunction, nil
	}
}

func (p *Page) WaitForReadyState(ctx context.Context, timeout time.Duration) error {
	err := poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		state, err := p.Evaluate(ctx, "document.readyState")
		if err != nil {
			if transient(err) {
				return false, nil
			}
			return false, err
		}
		return state == "complete" || state == "interactive", nil
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("wait for document ready: %w", err)
	}
	return err
}

// WaitForURL waits until the page location equals want. A trailing slash is
// not significant.
func (p *Page) WaitForURL(ctx context.Context, want string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.browser.navigationTimeout()
	}
	var last string
	err := poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		current, err := p.GetURL(ctx)
		if err != nil {
			if transient(err) {
				return false, nil
			}
			return false, err
		}
		last = current
		return sameURL(current, want), nil
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("wait for url %s (last %s): %w", want, last, err)
	}
	if err != nil {
		return err
	}
	return p.WaitForReadyState(ctx, timeout)
}

func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

type ScreenshotOptions struct {
	// Format is png, jpeg or webp. Empty means png.
	Format   string
	Quality  int
	FullPage bool
}

// Screenshot captures the page and returns the encoded image bytes.
func (p *Page) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"format":      format,
		"fromSurface": true,
	}
	if format == "jpeg" || format == "webp" {
		quality := opts.Quality
		if quality <= 0 {
			quality = 80
		}
		params["quality"] = quality
	}
	if opts.FullPage {
		metrics, err := p.send(ctx, "Page.getLayoutMetrics", nil)
		if err != nil {
			return nil, err
		}
		width := metrics.Get("cssContentSize.width").Float()
		height := metrics.Get("cssContentSize.height").Float()
		if width > 0 && height > 0 {
			params["captureBeyondViewport"] = true
			params["clip"] = map[string]any{"x": 0, "y": 0, "width": width, "height": height, "scale": 1}
		}
	}
	result, err := p.send(ctx, "Page.captureScreenshot", params)
	if err != nil {
		return nil, err
	}
	data := result.Get("data").String()
	if data == "" {
		return nil, errors.New("screenshot data missing")
	}
	return base64.StdEncoding.DecodeString(data)
}

func normalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "", "png":
		return "png", nil
	case "jpg", "jpeg":
		return "jpeg", nil
	case "webp":
		return "webp", nil
	default:
		return "", fmt.Errorf("unsupported screenshot format %q", format)
	}
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	_, err := p.send(ctx, "Input.insertText", map[string]any{"text": text})
	return err
}

func (p *Page) SetViewportSize(ctx context.Context, width, height int) error {
	params := map[string]any{"width": width, "height": height, "deviceScaleFactor": 1, "mobile": false}
	_, err := p.send(ctx, "Emulation.setDeviceMetricsOverride", params)
	return err
}

func (p *Page) DevicePixelRatio(ctx context.Context) float64 {
	value, err := p.Evaluate(ctx, "window.devicePixelRatio")
	if err != nil {
		return 1
	}
	ratio := gjson.Parse(value).Float()
	if ratio <= 0 {
		return 1
	}
	return ratio
}

func (p *Page) GetURL(ctx context.Context) (string, error) {
	return p.Evaluate(ctx, "() => window.location.href")
}

func (p *Page) GetTitle(ctx context.Context) (string, error) {
	return p.Evaluate(ctx, "() => document.title")
}

// GetByRole locates elements by ARIA role and accessible name. An empty name
// matches any element with the role.
func (p *Page) GetByRole(role, name string, exact bool) *Locator {
	return &Locator{page: p, kind: byRole, role: role, name: name, exact: exact, timeout: DefaultTimeout}
}

// GetByLabel locates form controls by the text of their label, aria-label or
// aria-labelledby.
func (p *Page) GetByLabel(text string, exact bool) *Locator {
	return &Locator{page: p, kind: byLabel, name: text, exact: exact, timeout: DefaultTimeout}
}
