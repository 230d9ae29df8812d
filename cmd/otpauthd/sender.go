package main

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/stratauth/otpauth/pkg/models"
	"github.com/zerodha/logf"
)

// providerSender adapts a delivery Provider into the strategy's Sender,
// rendering the configured subject and body templates per delivery.
// The principal doubles as the delivery address (an e-mail or a phone
// number, depending on the provider).
type providerSender struct {
	p        models.Provider
	subject  *template.Template
	body     *template.Template
	lifetime time.Duration
	lo       logf.Logger
}

// senderTplData is the data exposed to the message templates.
type senderTplData struct {
	To      string
	Channel string
	OTP     string
	OTPTTL  time.Duration
}

// Send renders the message and pushes it out through the provider.
func (s *providerSender) Send(ctx context.Context, principal, code string) error {
	if err := s.p.ValidateAddress(principal); err != nil {
		return fmt.Errorf("invalid address %s: %v", principal, err)
	}

	var (
		subj = &bytes.Buffer{}
		out  = &bytes.Buffer{}

		data = senderTplData{
			To:      principal,
			Channel: s.p.ChannelName(),
			OTP:     code,
			OTPTTL:  s.lifetime,
		}
	)

	if s.subject != nil {
		if err := s.subject.Execute(subj, data); err != nil {
			return err
		}
	}
	if s.body != nil {
		if err := s.body.Execute(out, data); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Your one-time password is %s.", code)
	}

	if out.Len() > s.p.MaxBodyLen() {
		return fmt.Errorf("message body exceeds %d bytes", s.p.MaxBodyLen())
	}

	s.lo.Debug("sending otp", "to", principal, "provider", s.p.ID())
	return s.p.Push(principal, subj.String(), out.Bytes())
}
