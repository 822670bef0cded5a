package scp

import "gpcm/apdu"

// Channel wraps outgoing commands and unwraps incoming responses after a
// secure-channel handshake. The two concrete implementations, Scp02 and
// Scp03, are the only variants this module supports (§9 — sum type, not
// open inheritance).
type Channel interface {
	Wrap(c apdu.Command) (apdu.Command, error)
	Unwrap(r apdu.Response) (apdu.Response, error)
	// SecurityLevel returns the security level negotiated for this
	// channel (a bitwise-OR of CMAC/CDecryption/RMAC/REncryption).
	SecurityLevel() byte
	// DEK returns the session Data Encryption Key, used by PUT KEY
	// payload assembly (§4.9). Empty if the session did not derive one.
	DEK() []byte
	// Close zeroes all session key material. Subsequent Wrap/Unwrap
	// calls on a closed channel panic — matching the "debug assertion
	// on re-entry" design note (§9); a closed channel is a programming
	// error to keep using, not a recoverable runtime condition.
	Close()
}
