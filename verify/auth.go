package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adminverify/browser"
)

// Branch records how the run obtained a session in the admin app.
type Branch string

const (
	BranchLogin  Branch = "login"
	BranchSignup Branch = "signup"
)

type authenticator struct {
	creds    Credentials
	adminURL string
	// timeout bounds the wait for the login form to go away and for the
	// post-signup redirect.
	timeout time.Duration
	logger  *slog.Logger
}

// authenticate logs in, and signs up only when the login failure shows there
// is no usable account. Any other failure is returned as is.
func (a *authenticator) authenticate(ctx context.Context, page Page) (Branch, error) {
	loginErr := a.login(ctx, page)
	if loginErr == nil {
		return BranchLogin, nil
	}
	if !noUsableAccount(loginErr) {
		return "", fmt.Errorf("login: %w", loginErr)
	}
	a.logger.Info("login unavailable, signing up", "reason", loginErr)
	if err := a.signup(ctx, page); err != nil {
		return "", fmt.Errorf("signup (login: %v): %w", loginErr, err)
	}
	return BranchSignup, nil
}

func (a *authenticator) login(ctx context.Context, page Page) error {
	if err := page.GetByLabel("Email", true).Fill(ctx, a.creds.Email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	password := page.GetByLabel("Password", true)
	if err := password.Fill(ctx, a.creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := page.GetByRole("button", "Login", true).Click(ctx); err != nil {
		return fmt.Errorf("click login: %w", err)
	}
	if err := password.WaitHidden(ctx, a.timeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return fmt.Errorf("%w: form still shown after %s", ErrLoginRejected, a.timeout)
		}
		return err
	}
	a.logger.Debug("logged in", "email", a.creds.Email)
	return nil
}

func (a *authenticator) signup(ctx context.Context, page Page) error {
	if err := page.GetByRole("link", "Sign up", true).Click(ctx); err != nil {
		return fmt.Errorf("open sign up: %w", err)
	}
	fields := []struct {
		label string
		value string
	}{
		{"Email", a.creds.Email},
		{"Password", a.creds.Password},
		{"Confirm Password", a.creds.Password},
	}
	for _, field := range fields {
		if err := page.GetByLabel(field.label, true).Fill(ctx, field.value); err != nil {
			return fmt.Errorf("fill %s: %w", field.label, err)
		}
	}
	if err := page.GetByRole("button", "Sign up", true).Click(ctx); err != nil {
		return fmt.Errorf("submit sign up: %w", err)
	}
	if err := page.WaitForURL(ctx, a.adminURL, a.timeout); err != nil {
		return err
	}
	a.logger.Debug("signed up", "email", a.creds.Email)
	return nil
}
