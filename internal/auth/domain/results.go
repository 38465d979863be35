// Package domain defines the request and result types the login, external
// linking, and logout flows exchange with the presentation layer. Every
// recoverable failure is a result variant the caller can render; nothing is
// swallowed.
package domain

import "tenant-identity-provider/internal/federation"

// LoginAttempt is one password login submission. The password must not be
// retained past the authentication call; no result type carries it back.
type LoginAttempt struct {
	Username  string
	Password  string
	ReturnURL string
	TenantID  string
}

// ChallengeDirective tells the transport to hand the browser to an external
// provider instead of showing a form.
type ChallengeDirective struct {
	Scheme      string
	RedirectURL string
	StateID     string
}

// LoginPresentation is the state needed to render the login page. When
// Challenge is non-nil the form is skipped and the browser is redirected.
// It never carries a password.
type LoginPresentation struct {
	ReturnURL         string
	Username          string // re-render aid after a failed attempt
	ExternalProviders []federation.SchemeDescriptor
	Challenge         *ChallengeDirective
}

// LoginOutcome classifies the result of a login or registration submission.
type LoginOutcome string

const (
	LoginOutcomeRedirect      LoginOutcome = "redirect"
	LoginOutcomeInvalid       LoginOutcome = "invalid"
	LoginOutcomeLockedOut     LoginOutcome = "locked_out"
	LoginOutcomeUsernameTaken LoginOutcome = "username_taken"
	LoginOutcomeLinkFailed    LoginOutcome = "link_failed"
)

// LoginResult is the typed outcome of a login or registration submission.
type LoginResult struct {
	Outcome      LoginOutcome
	RedirectURL  string // set when Outcome is redirect
	SessionToken string // set when a session was established
	Presentation *LoginPresentation
	// Failure carries the store's or validator's detail for field-level
	// rendering; empty on success.
	Failure string
}

// ExternalOutcome classifies the result of an external login callback.
type ExternalOutcome string

const (
	ExternalOutcomeSignedIn          ExternalOutcome = "signed_in"
	ExternalOutcomeNeedsRegistration ExternalOutcome = "needs_registration"
	ExternalOutcomeNoInfo            ExternalOutcome = "no_info"
)

// ExternalLoginResult is the typed outcome of completing an external login.
type ExternalLoginResult struct {
	Outcome           ExternalOutcome
	RedirectURL       string
	SessionToken      string
	SuggestedUsername string
	ReturnURL         string
	StateID           string
	// Reason explains a NoInfo outcome so the login page can surface an
	// error instead of silently starting over.
	Reason string
}

// ExternalRegisterAttempt is the submission that fuses a pending external
// identity with a new local account.
type ExternalRegisterAttempt struct {
	StateID   string
	Username  string
	ReturnURL string
}

// RedirectTarget is where the browser is sent after logout. Default is true
// when the configured landing page was used instead of a client-supplied URI.
type RedirectTarget struct {
	URL     string
	Default bool
}
