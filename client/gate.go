package client

// Decision is the outcome of gating a protected route.
type Decision int

const (
	// Wait means auth state is still being restored; render nothing yet.
	Wait Decision = iota
	// RedirectLogin sends anonymous visitors to the login screen.
	RedirectLogin
	// RedirectVerify sends authenticated but unverified accounts to the
	// verification screen.
	RedirectVerify
	// Allow lets the route render.
	Allow
)

// String names the decision for logs and tests.
func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case RedirectLogin:
		return "login"
	case RedirectVerify:
		return "verify"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// GateOptions tune the gate per route.
type GateOptions struct {
	// AllowUnverified skips the verification step, for the handful of
	// routes an unverified account must still reach (the verification
	// screen itself, logout).
	AllowUnverified bool
}

// Decide gates a protected route from an auth snapshot. Checks run in a
// fixed order: session first, then verification, so an anonymous visitor
// lands on login rather than verify. Unverified accounts are redirected
// unless the route opts out.
func Decide(state Snapshot, opts GateOptions) Decision {
	if state.IsCheckingAuth {
		return Wait
	}

	if !state.IsAuthenticated || state.Identity == nil {
		return RedirectLogin
	}

	if !opts.AllowUnverified && !state.Identity.Verified {
		return RedirectVerify
	}

	return Allow
}
