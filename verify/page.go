package verify

import (
	"context"
	"log/slog"
	"time"

	"adminverify/browser"
)

// Page is the slice of browser.Page the flow needs. Every step takes it
// explicitly.
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitForURL(ctx context.Context, url string, timeout time.Duration) error
	GetURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error)
	DevicePixelRatio(ctx context.Context) float64
	AccessibleNames(ctx context.Context, role string) ([]string, error)
	GetByRole(role, name string, exact bool) Locator
	GetByLabel(text string, exact bool) Locator
}

type Locator interface {
	Fill(ctx context.Context, text string) error
	Click(ctx context.Context) error
	ExpectVisible(ctx context.Context, timeout time.Duration) (Element, error)
	WaitHidden(ctx context.Context, timeout time.Duration) error
}

type Element interface {
	GetBoundingBox(ctx context.Context) (browser.BoundingBox, error)
}

// Session is a browser scoped to one run. Close must be safe to call more
// than once.
type Session interface {
	Page() Page
	Close() error
}

type AcquireFunc func(ctx context.Context) (Session, error)

type browserPage struct {
	*browser.Page
	timeout time.Duration
}

// NewPage adapts a browser page. Locators created from it wait up to timeout.
func NewPage(page *browser.Page, timeout time.Duration) Page {
	return browserPage{Page: page, timeout: timeout}
}

func (p browserPage) GetByRole(role, name string, exact bool) Locator {
	return browserLocator{p.Page.GetByRole(role, name, exact).WithTimeout(p.timeout)}
}

func (p browserPage) GetByLabel(text string, exact bool) Locator {
	return browserLocator{p.Page.GetByLabel(text, exact).WithTimeout(p.timeout)}
}

type browserLocator struct {
	*browser.Locator
}

func (l browserLocator) ExpectVisible(ctx context.Context, timeout time.Duration) (Element, error) {
	el, err := l.Locator.ExpectVisible(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return el, nil
}

type browserSession struct {
	session *browser.BrowserSession
	page    Page
}

func (s *browserSession) Page() Page   { return s.page }
func (s *browserSession) Close() error { return s.session.Close() }

// AcquireBrowser launches or connects to Chrome as configured.
func AcquireBrowser(cfg Config, logger *slog.Logger) AcquireFunc {
	return func(ctx context.Context) (Session, error) {
		session, err := browser.Acquire(ctx, browser.Options{
			CDPURL:            cfg.CDPURL,
			NavigationTimeout: cfg.NavigationTimeout,
			Logger:            logger,
			Launch: browser.LaunchOptions{
				ExecPath:     cfg.ChromePath,
				Headless:     cfg.Headless,
				WindowWidth:  1280,
				WindowHeight: 720,
			},
		})
		if err != nil {
			return nil, err
		}
		return &browserSession{session: session, page: NewPage(session.CurrentPage(), cfg.ExpectTimeout)}, nil
	}
}
