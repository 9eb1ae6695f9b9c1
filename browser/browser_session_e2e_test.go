package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"testing"
	"time"
)

const adminFixtureHTML = `<!doctype html>
<html><body>
<form id="login" onsubmit="event.preventDefault(); document.getElementById('login').hidden = true; document.getElementById('tabs').hidden = false;">
  <label for="email">Email</label><input id="email" type="email">
  <label for="password">Password</label><input id="password" type="password">
  <label for="confirm">Confirm Password</label><input id="confirm" type="password">
  <button type="submit">Login</button>
</form>
<div id="tabs" role="tablist" hidden>
  <button role="tab" aria-selected="true">Users</button>
  <button role="tab">LLM Keys</button>
  <button role="tab" style="display:none">Billing</button>
</div>
</body></html>`

func acquireForE2E(t *testing.T, ctx context.Context) *BrowserSession {
	t.Helper()
	if os.Getenv("VERIFY_E2E") == "" {
		t.Skip("set VERIFY_E2E=1 to run")
	}
	opts := Options{CDPURL: os.Getenv("CDP_URL")}
	if opts.CDPURL == "" {
		opts.Launch = LaunchOptions{ExecPath: os.Getenv("CHROME_PATH"), Headless: true}
	} else if err := waitForCDP(opts.CDPURL, 5*time.Second); err != nil {
		t.Fatalf("cdp not ready at %s: %v", opts.CDPURL, err)
	}
	session, err := Acquire(ctx, opts)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestLocatorsAgainstRealBrowserE2E(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	session := acquireForE2E(t, ctx)

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, adminFixtureHTML)
	}))
	defer site.Close()

	page := session.CurrentPage()
	if err := page.Goto(ctx, site.URL+"/admin"); err != nil {
		t.Fatalf("goto failed: %v", err)
	}

	if err := page.GetByLabel("Email", true).Fill(ctx, "admin@example.com"); err != nil {
		t.Fatalf("fill email: %v", err)
	}
	if err := page.GetByLabel("Password", true).Fill(ctx, "password"); err != nil {
		t.Fatalf("exact label should not match Confirm Password: %v", err)
	}
	var strict *StrictModeError
	if err := page.GetByLabel("password", false).WithTimeout(time.Second).Fill(ctx, "x"); !errors.As(err, &strict) {
		t.Fatalf("expected strict mode violation for inexact label, got %v", err)
	}

	tab := page.GetByRole("tab", "LLM Keys", true)
	if _, err := tab.ExpectVisible(ctx, 500*time.Millisecond); !errors.Is(err, ErrNotVisible) {
		t.Fatalf("expected hidden tab before login, got %v", err)
	}
	if err := page.GetByRole("button", "Login", true).Click(ctx); err != nil {
		t.Fatalf("click login: %v", err)
	}
	el, err := tab.ExpectVisible(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("expected LLM Keys tab visible: %v", err)
	}
	box, err := el.GetBoundingBox(ctx)
	if err != nil || box.Empty() {
		t.Fatalf("expected tab bounding box, got %+v, %v", box, err)
	}
	if _, err := page.GetByRole("tab", "Billing", true).ExpectVisible(ctx, 300*time.Millisecond); !errors.Is(err, ErrNotVisible) {
		t.Fatalf("expected display:none tab to be invisible, got %v", err)
	}

	names, err := page.AccessibleNames(ctx, "tab")
	if err != nil {
		t.Fatalf("accessible names: %v", err)
	}
	if !slices.Equal(names, []string{"Users", "LLM Keys"}) {
		t.Fatalf("unexpected tab names %v", names)
	}

	shot, err := page.Screenshot(ctx, ScreenshotOptions{})
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if _, err := AnnotateScreenshot(shot, box, "LLM Keys", page.DevicePixelRatio(ctx), "png"); err != nil {
		t.Fatalf("annotate: %v", err)
	}
}

func waitForCDP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := baseURL + "/json/version"
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(150 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", url)
}
