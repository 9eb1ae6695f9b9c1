package verify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"adminverify/browser"
)

// fakePage records every step of the flow. Errors are keyed by locator, e.g.
// "label:Email" or "role:button:Login".
type fakePage struct {
	actions []string

	gotoErr    map[string]error
	fillErr    map[string]error
	clickErr   map[string]error
	hiddenErr  map[string]error
	visibleErr map[string]error
	waitURLErr error
	shotErr    error

	box  browser.BoundingBox
	shot []byte
	tabs []string
}

func newFakePage() *fakePage {
	return &fakePage{
		gotoErr:    map[string]error{},
		fillErr:    map[string]error{},
		clickErr:   map[string]error{},
		hiddenErr:  map[string]error{},
		visibleErr: map[string]error{},
		box:        browser.BoundingBox{X: 20, Y: 10, Width: 60, Height: 20},
		shot:       []byte("\x89PNG evidence"),
		tabs:       []string{"Users", "Settings"},
	}
}

func (p *fakePage) record(format string, args ...any) {
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	p.record("goto %s", url)
	return p.gotoErr[url]
}

func (p *fakePage) WaitForURL(ctx context.Context, url string, timeout time.Duration) error {
	p.record("wait url %s", url)
	return p.waitURLErr
}

func (p *fakePage) GetURL(ctx context.Context) (string, error) {
	return "", nil
}

func (p *fakePage) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	p.record("screenshot %s", opts.Format)
	return p.shot, p.shotErr
}

func (p *fakePage) DevicePixelRatio(ctx context.Context) float64 { return 1 }

func (p *fakePage) AccessibleNames(ctx context.Context, role string) ([]string, error) {
	p.record("names %s", role)
	return p.tabs, nil
}

func (p *fakePage) GetByRole(role, name string, exact bool) Locator {
	return &fakeLocator{page: p, key: "role:" + role + ":" + name}
}

func (p *fakePage) GetByLabel(text string, exact bool) Locator {
	return &fakeLocator{page: p, key: "label:" + text}
}

type fakeLocator struct {
	page *fakePage
	key  string
}

func (l *fakeLocator) Fill(ctx context.Context, text string) error {
	l.page.record("fill %s=%s", l.key, text)
	return l.page.fillErr[l.key]
}

func (l *fakeLocator) Click(ctx context.Context) error {
	l.page.record("click %s", l.key)
	return l.page.clickErr[l.key]
}

func (l *fakeLocator) ExpectVisible(ctx context.Context, timeout time.Duration) (Element, error) {
	l.page.record("expect %s", l.key)
	if err := l.page.visibleErr[l.key]; err != nil {
		return nil, err
	}
	return fakeElement{box: l.page.box}, nil
}

func (l *fakeLocator) WaitHidden(ctx context.Context, timeout time.Duration) error {
	l.page.record("hidden %s", l.key)
	return l.page.hiddenErr[l.key]
}

type fakeElement struct {
	box browser.BoundingBox
}

func (e fakeElement) GetBoundingBox(ctx context.Context) (browser.BoundingBox, error) {
	return e.box, nil
}

type fakeSession struct {
	page   *fakePage
	closed int
}

func (s *fakeSession) Page() Page { return s.page }

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
