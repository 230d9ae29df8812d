package otpauth

// Request carries the per-attempt parameters extracted from an inbound
// request by the host framework.
type Request struct {
	Principal   string
	Code        string
	ChallengeID string
}

// Outcome is the disposition of an authentication attempt that did not
// error.
type Outcome int

const (
	// OutcomeIssued means a fresh challenge was stored and delivered.
	// The caller has to come back with the code to finish.
	OutcomeIssued Outcome = iota

	// OutcomeSuccess means the code matched and the resolver produced
	// a user.
	OutcomeSuccess

	// OutcomeFail means the attempt was rejected: the code was invalid
	// or the resolver declined the principal.
	OutcomeFail
)

// Result is what a non-erroring authentication attempt yields to the
// host framework.
type Result struct {
	Outcome Outcome

	// User is the resolved application user on OutcomeSuccess.
	User any

	// Info is diagnostic data: the uniform invalid-code message on a
	// code mismatch, or whatever the resolver supplied.
	Info any

	// ChallengeID is set on OutcomeIssued in KeyByChallenge mode and
	// must be presented with the code at verification.
	ChallengeID string
}
