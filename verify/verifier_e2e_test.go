package verify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	loginPageHTML = `<!doctype html>
<html><body>
<h1>Admin login</h1>
%s
<form method="post" action="/admin/login">
  <label for="email">Email</label><input id="email" name="email" type="email">
  <label for="password">Password</label><input id="password" name="password" type="password">
  <button type="submit">Login</button>
</form>
<a href="/admin/signup">Sign up</a>
</body></html>`
	signupPageHTML = `<!doctype html>
<html><body>
<h1>Create admin account</h1>
<form method="post" action="/admin/signup">
  <label for="email">Email</label><input id="email" name="email" type="email">
  <label for="password">Password</label><input id="password" name="password" type="password">
  <label for="confirm">Confirm Password</label><input id="confirm" name="confirm" type="password">
  <button type="submit">Sign up</button>
</form>
</body></html>`
	adminHomeHTML = `<!doctype html>
<html><body><h1>Admin</h1><a href="/dashboard">Dashboard</a></body></html>`
	dashboardHTML = `<!doctype html>
<html><body>
<div role="tablist">
  <button role="tab" aria-selected="true">Users</button>
  <button role="tab">LLM Keys</button>
</div>
</body></html>`
)

// adminApp is an in-memory admin panel: accounts survive between runs,
// sessions do not.
type adminApp struct {
	mu       sync.Mutex
	accounts map[string]string
	sessions map[string]bool
}

func newAdminApp() *adminApp {
	return &adminApp{accounts: map[string]string{}, sessions: map[string]bool{}}
}

func (a *adminApp) dropSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = map[string]bool{}
}

func (a *adminApp) signedIn(r *http.Request) bool {
	cookie, err := r.Cookie("session")
	if err != nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[cookie.Value]
}

func (a *adminApp) startSession(w http.ResponseWriter) {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)
	a.mu.Lock()
	a.sessions[token] = true
	a.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "session", Value: token, Path: "/"})
}

func (a *adminApp) handler() http.Handler {
	mux := http.NewServeMux()
	render := func(w http.ResponseWriter, html string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, html)
	}
	mux.HandleFunc("GET /admin", func(w http.ResponseWriter, r *http.Request) {
		if a.signedIn(r) {
			render(w, adminHomeHTML)
			return
		}
		render(w, fmt.Sprintf(loginPageHTML, ""))
	})
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		email, password := r.FormValue("email"), r.FormValue("password")
		a.mu.Lock()
		ok := email != "" && a.accounts[email] == password
		a.mu.Unlock()
		if !ok {
			render(w, fmt.Sprintf(loginPageHTML, `<p role="alert">Invalid credentials</p>`))
			return
		}
		a.startSession(w)
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /admin/signup", func(w http.ResponseWriter, r *http.Request) {
		render(w, signupPageHTML)
	})
	mux.HandleFunc("POST /admin/signup", func(w http.ResponseWriter, r *http.Request) {
		email, password := r.FormValue("email"), r.FormValue("password")
		if email == "" || password == "" || password != r.FormValue("confirm") {
			render(w, signupPageHTML)
			return
		}
		a.mu.Lock()
		a.accounts[email] = password
		a.mu.Unlock()
		a.startSession(w)
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /dashboard", func(w http.ResponseWriter, r *http.Request) {
		if !a.signedIn(r) {
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return
		}
		render(w, dashboardHTML)
	})
	return mux
}

func TestRunAgainstRealBrowserE2E(t *testing.T) {
	if os.Getenv("VERIFY_E2E") == "" {
		t.Skip("set VERIFY_E2E=1 to run")
	}
	app := newAdminApp()
	site := httptest.NewServer(app.handler())
	defer site.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = site.URL
	cfg.ScreenshotPath = filepath.Join(t.TempDir(), "verification", "verification.png")
	cfg.CDPURL = os.Getenv("CDP_URL")
	cfg.ChromePath = os.Getenv("CHROME_PATH")
	cfg.NavigationTimeout = 3 * time.Second
	cfg.RunTimeout = time.Minute
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	run := func() *Result {
		t.Helper()
		v, err := NewVerifier(cfg)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		result, err := v.Run(ctx)
		require.NoError(t, err)
		return result
	}

	first := run()
	assert.Equal(t, BranchSignup, first.Branch)
	assert.FileExists(t, first.ScreenshotPath)
	assert.Greater(t, first.TabBox.Width, 0.0)

	app.dropSessions()
	require.NoError(t, os.Remove(cfg.ScreenshotPath))

	second := run()
	assert.Equal(t, BranchLogin, second.Branch)
	assert.FileExists(t, second.ScreenshotPath)
}
