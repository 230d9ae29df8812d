package models

import (
	"time"
)

// OTPRecord is the unit of state a storage backend holds for one
// outstanding challenge.
type OTPRecord struct {
	// Code is the secret value the verifier has to present.
	Code string `bson:"code" json:"code"`

	// ExpiresAt is the absolute expiry of the record. Backends never
	// return a record past this instant.
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Provider is an interface for a generic messaging backend,
// for instance, e-mail, SMS etc., that delivers OTP codes out-of-band.
type Provider interface {
	// ID returns the name of the Provider.
	ID() string

	// ChannelName returns the name of the channel the provider delivers
	// on, for example "SMS" or "E-mail".
	ChannelName() string

	// ValidateAddress validates the address the Provider is supposed
	// to send the OTP to, for instance, an e-mail or a phone number.
	ValidateAddress(to string) error

	// Push pushes a message to the given address. Depending on the
	// Provider implementation, this can either cause the message to
	// be sent immediately or be queued.
	Push(to, subject string, body []byte) error

	// MaxOTPLen returns the maximum allowed length of the OTP value.
	MaxOTPLen() int

	// MaxBodyLen returns the maximum permitted length of the text
	// that can be sent by the Provider.
	MaxBodyLen() int
}
