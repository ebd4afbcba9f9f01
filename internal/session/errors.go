package session

import (
	"errors"
	"fmt"
)

// AuthReason classifies authentication failures. ChallengeRequired means the
// site presented an anti-bot interstitial; it is fatal for the run and must
// never be retried as a transient error.
type AuthReason string

const (
	ReasonInvalidCredentials AuthReason = "invalid_credentials"
	ReasonChallengeRequired  AuthReason = "challenge_required"
	ReasonNetwork            AuthReason = "network"
	ReasonExpiredMidRun      AuthReason = "expired_mid_run"
)

// AuthError is the fatal error family for session failures.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err belongs to the AuthError family.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsChallenge reports whether err is an AuthError caused by an anti-bot
// challenge.
func IsChallenge(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Reason == ReasonChallengeRequired
}
