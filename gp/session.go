// Package gp implements the GlobalPlatform card-management command layer:
// the authentication orchestrator, key lifecycle, content lifecycle,
// load/install sequencing, and the ELF upgrade state machine, all built
// on a wrapped Transport (§4.4, §4.8–§4.11, §4.13).
package gp

import (
	"fmt"

	"gpcm/apdu"
	"gpcm/gperr"
	"gpcm/scp"
)

// Transport routes raw command-APDU bytes to the card and returns the
// raw response bytes (data followed by the two status-word bytes). It
// returns an error only for transport/hardware failures, never for a
// card-level status word — matching GP 2.3's distinction between a
// failed transmission and a failed command (§6).
//
// A 0x61xx ("more data available") status word is this interface's
// concern to chain via GET RESPONSE before returning; the Session never
// sees 0x61xx.
type Transport interface {
	Transmit(raw []byte) ([]byte, error)
}

// Session wraps a Transport and, once authenticated, an installed
// secure channel. All GP command-layer operations are methods on
// *Session.
type Session struct {
	transport Transport
	channel   scp.Channel // nil before authentication
	poisoned  bool
}

// NewSession wraps a Transport with no channel installed.
func NewSession(t Transport) *Session {
	return &Session{transport: t}
}

// Channel returns the currently installed secure channel, or nil.
func (s *Session) Channel() scp.Channel { return s.channel }

// Send encodes cmd, wraps it through the installed channel (if any),
// transmits it, and unwraps the response. A transport error or an R-MAC
// failure poisons the session: the channel is closed and every
// subsequent Send on this Session fails. The poisoned state is never
// cleared, not even by Authenticate, whose own INITIALIZE UPDATE goes
// through Send; recovering takes a new Session.
func (s *Session) Send(cmd apdu.Command) (apdu.Response, error) {
	if s.poisoned {
		return apdu.Response{}, &gperr.TransportError{Op: "Send", Err: fmt.Errorf("channel poisoned by a prior transport failure")}
	}

	wire := cmd
	if s.channel != nil {
		wrapped, err := s.channel.Wrap(cmd)
		if err != nil {
			return apdu.Response{}, err
		}
		wire = wrapped
	}

	raw, err := apdu.Encode(wire)
	if err != nil {
		return apdu.Response{}, err
	}

	respBytes, err := s.transport.Transmit(raw)
	if err != nil {
		s.poison()
		return apdu.Response{}, &gperr.TransportError{Op: "Transmit", Err: err}
	}

	resp, err := apdu.DecodeRaw(respBytes)
	if err != nil {
		return apdu.Response{}, err
	}

	if s.channel != nil {
		unwrapped, err := s.channel.Unwrap(resp)
		if err != nil {
			s.poison()
			return apdu.Response{}, err
		}
		resp = unwrapped
	}
	return resp, nil
}

// poison tears the channel down after a transport failure or a MAC
// verification failure, per §5's poisoning rule.
func (s *Session) poison() {
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	s.poisoned = true
}

// Close zeroes the installed channel's session keys, if any.
func (s *Session) Close() {
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
}

// requireSuccess turns a non-9000 status word into a CardStatusError.
func requireSuccess(op string, resp apdu.Response) error {
	if resp.Success() {
		return nil
	}
	return &gperr.CardStatusError{Op: op, SW: resp.SW()}
}
