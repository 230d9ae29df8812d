// Package otpauth implements one-time-password challenge/response
// authentication as a pluggable strategy. A host framework hands it a
// principal; it generates a short-lived code, stores it against a key
// with a TTL, delivers it out-of-band via a Sender, and later verifies
// a presented code exactly once before resolving the principal to an
// application user via a Resolver.
package otpauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/stratauth/otpauth/internal/codegen"
	"github.com/stratauth/otpauth/internal/store"
)

const (
	alphaChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	numChars      = "0123456789"
	alphaNumChars = alphaChars + numChars

	// challengeIDLen is the length of generated challenge IDs in
	// KeyByChallenge mode. 62^32 makes IDs unguessable.
	challengeIDLen = 32

	// DefaultLifetime is how long an issued code stays verifiable.
	DefaultLifetime = 15 * time.Minute

	// failInvalidOTP is the uniform failure message for every
	// invalid-code outcome. Wrong, expired, consumed and never-issued
	// codes are deliberately indistinguishable to the caller.
	failInvalidOTP = "invalid OTP"
)

var (
	// ErrNoPrincipal is thrown when an authentication attempt carries
	// no principal at all.
	ErrNoPrincipal = errors.New("no principal to authenticate")

	// ErrNoChallengeID is thrown in KeyByChallenge mode when a code is
	// presented without the challenge ID it was issued under.
	ErrNoChallengeID = errors.New("no challenge ID for the presented code")

	// ErrBadRequest is thrown for parameter combinations that are
	// neither an issue nor a verify request.
	ErrBadRequest = errors.New("invalid authentication parameters")
)

// KeyMode selects how challenges are keyed in the store.
type KeyMode int

const (
	// KeyByUsername keys challenges by the principal alone. Only one
	// challenge is outstanding per principal; issuing again before
	// verification replaces the previous code.
	KeyByUsername KeyMode = iota

	// KeyByChallenge keys challenges by the principal plus a generated
	// challenge ID that's returned to the caller at issuance. Multiple
	// challenges can be outstanding per principal; the verifier must
	// present the ID alongside the code.
	KeyByChallenge
)

// Sender delivers a generated code to the principal out-of-band
// (e-mail, SMS etc.). Its failure is terminal for the issuance attempt.
type Sender interface {
	Send(ctx context.Context, principal, code string) error
}

// Resolver turns a principal whose code just matched into an
// application-level user. A nil user with a nil error means the
// principal was declined; info carries whatever diagnostic the
// resolver wants surfaced either way.
type Resolver interface {
	Resolve(ctx context.Context, principal string) (user any, info any, err error)
}

// Strategy orchestrates the OTP request/verify state machine over a
// storage backend, a code generator, and the two external
// collaborators. It is safe for concurrent use; no lock is held across
// storage or collaborator calls.
type Strategy struct {
	cfg      Config
	store    store.Store
	gen      *codegen.Generator
	chGen    *codegen.Generator
	sender   Sender
	resolver Resolver
}

// New returns a Strategy with the configuration resolved and validated.
func New(cfg Config, st store.Store, sender Sender, resolver Resolver) (*Strategy, error) {
	if st == nil {
		return nil, errors.New("no store given")
	}
	if sender == nil {
		return nil, errors.New("no sender given")
	}
	if resolver == nil {
		return nil, errors.New("no resolver given")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}

	gen, err := codegen.New(cfg.Alphabet, cfg.Length)
	if err != nil {
		return nil, err
	}
	chGen, err := codegen.New(alphaNumChars, challengeIDLen)
	if err != nil {
		return nil, err
	}

	return &Strategy{
		cfg:      cfg,
		store:    st,
		gen:      gen,
		chGen:    chGen,
		sender:   sender,
		resolver: resolver,
	}, nil
}

// Authenticate runs one authentication attempt. A principal alone
// issues a new challenge; a principal with a code (and, in
// KeyByChallenge mode, the challenge ID) verifies one. Anything else
// is a parameter error. A returned error is the "error" leg of the
// strategy contract; rejections come back as OutcomeFail with a nil
// error.
func (s *Strategy) Authenticate(ctx context.Context, req Request) (Result, error) {
	switch {
	case req.Principal == "":
		return Result{}, ErrNoPrincipal
	case req.Code == "" && req.ChallengeID != "":
		return Result{}, ErrBadRequest
	case req.Code == "":
		return s.issue(ctx, req.Principal)
	case s.cfg.KeyMode == KeyByChallenge && req.ChallengeID == "":
		return Result{}, ErrNoChallengeID
	}

	return s.verify(ctx, req)
}

// issue generates and stores a fresh code and pushes it out via the
// sender.
func (s *Strategy) issue(ctx context.Context, principal string) (Result, error) {
	code, err := s.gen.Generate()
	if err != nil {
		return Result{}, fmt.Errorf("error generating OTP: %w", err)
	}

	challengeID := ""
	if s.cfg.KeyMode == KeyByChallenge {
		if challengeID, err = s.chGen.Generate(); err != nil {
			return Result{}, fmt.Errorf("error generating challenge ID: %w", err)
		}
	}

	if err := s.store.Set(ctx, s.makeKey(principal, challengeID), code, s.cfg.Lifetime); err != nil {
		return Result{}, fmt.Errorf("error storing OTP: %w", err)
	}

	if err := s.sender.Send(ctx, principal, code); err != nil {
		// The stored record is left behind to expire on its own. A
		// later issuance for the same key replaces it.
		return Result{}, fmt.Errorf("error sending OTP: %w", err)
	}

	return Result{Outcome: OutcomeIssued, ChallengeID: challengeID}, nil
}

// verify consumes the stored record and evaluates the presented code
// against it.
func (s *Strategy) verify(ctx context.Context, req Request) (Result, error) {
	// Take removes the record before the comparison, so the code is
	// burned by this attempt no matter how it resolves, and a racing
	// attempt on the same key observes nothing.
	rec, err := s.store.Take(ctx, s.makeKey(req.Principal, req.ChallengeID))
	if err != nil {
		if err == store.ErrNotExist {
			return Result{Outcome: OutcomeFail, Info: failInvalidOTP}, nil
		}
		return Result{}, fmt.Errorf("error reading OTP: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(req.Code)) != 1 {
		return Result{Outcome: OutcomeFail, Info: failInvalidOTP}, nil
	}

	user, info, err := s.resolver.Resolve(ctx, req.Principal)
	if err != nil {
		return Result{}, err
	}
	if user == nil {
		return Result{Outcome: OutcomeFail, Info: info}, nil
	}

	return Result{Outcome: OutcomeSuccess, User: user, Info: info}, nil
}

// makeKey derives the storage key for a challenge. In KeyByUsername
// mode the principal alone is the key; in KeyByChallenge mode the
// challenge ID is appended, so concurrent issuances for one principal
// never collide.
func (s *Strategy) makeKey(principal, challengeID string) string {
	if s.cfg.KeyMode == KeyByChallenge {
		return fmt.Sprintf("%s:%s", principal, challengeID)
	}
	return principal
}
