package verify

import (
	"errors"
	"fmt"

	"adminverify/browser"
)

var (
	// ErrVerification marks a run that reached the dashboard but could not
	// confirm the tab.
	ErrVerification = errors.New("verification failed")
	// ErrLoginRejected means the login form was submitted and stayed on screen.
	ErrLoginRejected = errors.New("login rejected")
)

type VerificationFailure struct {
	Tab   string
	Cause error
}

func (e *VerificationFailure) Error() string {
	return fmt.Sprintf("expect tab %q visible: %v", e.Tab, e.Cause)
}

func (e *VerificationFailure) Unwrap() []error {
	return []error{ErrVerification, e.Cause}
}

// noUsableAccount reports whether a failed login means there is no account to
// log in with, as opposed to a broken browser or transport.
func noUsableAccount(err error) bool {
	return errors.Is(err, browser.ErrElementNotFound) ||
		errors.Is(err, browser.ErrNotVisible) ||
		errors.Is(err, ErrLoginRejected)
}

// assertionFailure reports whether a locator error means the element is not
// there, as opposed to a broken browser or transport.
func assertionFailure(err error) bool {
	var strict *browser.StrictModeError
	return errors.Is(err, browser.ErrElementNotFound) ||
		errors.Is(err, browser.ErrNotVisible) ||
		errors.As(err, &strict)
}
