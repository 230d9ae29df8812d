package otpauth

import "time"

// Config is the strategy configuration, resolved once at construction
// and never mutated per request.
type Config struct {
	// Alphabet is the character set codes are drawn from.
	// Default: digits 0-9.
	Alphabet string `json:"alphabet"`

	// Length is the number of characters per code. Default: 6.
	Length int `json:"length"`

	// Lifetime is how long an issued code stays verifiable.
	// Default: 15 minutes.
	Lifetime time.Duration `json:"lifetime"`

	// KeyMode selects the challenge-identity shape.
	// Default: KeyByUsername.
	KeyMode KeyMode `json:"key_mode"`
}
