// Package apdu implements the ISO 7816-4 command/response APDU codec:
// encoding of command APDUs to wire bytes (short or extended form) and
// decoding of response bytes plus a trailing status word.
package apdu

import (
	"fmt"

	"gpcm/gperr"
)

// Command is an ISO 7816 command APDU.
type Command struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	// Le is the expected response length. Nil means no Le byte is sent
	// (a case 1/3 command). A value of 256 or 65536 encodes as the
	// wire's "give me everything" form (0x00 short-form, 0x0000
	// extended-form).
	Le *int
}

// Response is an ISO 7816 response APDU.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// SW returns the two status-word bytes combined big-endian.
func (r Response) SW() uint16 { return uint16(r.SW1)<<8 | uint16(r.SW2) }

// Success reports whether the status word is 0x9000.
func (r Response) Success() bool { return r.SW1 == 0x90 && r.SW2 == 0x00 }

// MoreData reports whether the card signalled additional response data
// retrievable via GET RESPONSE (SW1 = 0x61).
func (r Response) MoreData() bool { return r.SW1 == 0x61 }

const (
	maxShortLen = 255
	maxExtLen   = 65535
)

// Encode serializes a command APDU to wire bytes, choosing extended-length
// form whenever the data or Le exceeds the short-form range (§3, §6).
func Encode(c Command) ([]byte, error) {
	if len(c.Data) > maxExtLen {
		return nil, &gperr.MalformedApdu{Reason: fmt.Sprintf("data length %d exceeds extended-length range", len(c.Data))}
	}
	if c.Le != nil && (*c.Le < 0 || *c.Le > 65536) {
		return nil, &gperr.MalformedApdu{Reason: fmt.Sprintf("le %d out of range", *c.Le)}
	}

	extended := len(c.Data) > maxShortLen || (c.Le != nil && *c.Le > 256)

	buf := make([]byte, 0, 4+3+len(c.Data)+3)
	buf = append(buf, c.CLA, c.INS, c.P1, c.P2)

	if extended {
		if len(c.Data) > 0 {
			// The leading 0x00 both signals extended form and prefixes
			// the two-byte Lc; Le, if present, needs no further format
			// byte.
			buf = append(buf, 0x00, byte(len(c.Data)>>8), byte(len(c.Data)))
			buf = append(buf, c.Data...)
			if c.Le != nil {
				le := leWire(*c.Le, 65536)
				buf = append(buf, byte(le>>8), byte(le))
			}
			return buf, nil
		}
		// Case 2E: no data, Le only. The leading 0x00 is the sole
		// format indicator, followed by the two-byte Le.
		le := leWire(*c.Le, 65536)
		buf = append(buf, 0x00, byte(le>>8), byte(le))
		return buf, nil
	}

	if len(c.Data) > 0 {
		buf = append(buf, byte(len(c.Data)))
		buf = append(buf, c.Data...)
	}
	if c.Le != nil {
		buf = append(buf, byte(leWire(*c.Le, 256)))
	}
	return buf, nil
}

// leWire maps the "give me everything" sentinel (256 for short form,
// 65536 for extended form) to the wire encoding 0, and passes every
// other value through unchanged.
func leWire(le, wrapAt int) int {
	if le == wrapAt {
		return 0
	}
	return le
}

// DecodeResponse builds a Response from response data and a status word
// the caller has already separated (data must not contain the two SW
// bytes); this mirrors how Transport implementations typically hand back
// (data, sw1, sw2) separately. DecodeRaw does the splitting instead.
func DecodeResponse(data []byte, sw1, sw2 byte) Response {
	return Response{Data: data, SW1: sw1, SW2: sw2}
}

// DecodeRaw splits a raw response buffer (data followed by two trailing
// status bytes) into a Response. Fails if fewer than two bytes are
// present.
func DecodeRaw(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, &gperr.MalformedApdu{Reason: "response shorter than status word"}
	}
	n := len(raw)
	return Response{Data: raw[:n-2], SW1: raw[n-2], SW2: raw[n-1]}, nil
}

// Le returns an *int helper for building a Command literal concisely.
func Le(v int) *int { return &v }

// Decode parses wire bytes back into a Command, inverting Encode. It
// distinguishes short from extended form by the presence of a leading
// 0x00 length byte per ISO 7816-4 case rules. A zero Le field decodes as
// 256 (short form) or 65536 (extended form), so a Command encoded with
// Le 0 decodes with Le 256.
func Decode(raw []byte) (Command, error) {
	if len(raw) < 4 {
		return Command{}, &gperr.MalformedApdu{Reason: "header shorter than 4 bytes"}
	}
	c := Command{CLA: raw[0], INS: raw[1], P1: raw[2], P2: raw[3]}
	rest := raw[4:]

	switch len(rest) {
	case 0:
		// Case 1: no data, no Le.
		return c, nil
	case 1:
		// Case 2S: Le only.
		le := int(rest[0])
		if le == 0 {
			le = 256
		}
		c.Le = &le
		return c, nil
	}

	if rest[0] != 0x00 {
		// Short form with data (case 3S/4S).
		lc := int(rest[0])
		if len(rest) < 1+lc {
			return Command{}, &gperr.MalformedApdu{Reason: "declared Lc exceeds remaining bytes"}
		}
		c.Data = rest[1 : 1+lc]
		tail := rest[1+lc:]
		switch len(tail) {
		case 0:
		case 1:
			le := int(tail[0])
			if le == 0 {
				le = 256
			}
			c.Le = &le
		default:
			return Command{}, &gperr.MalformedApdu{Reason: "unexpected trailing bytes after short-form data"}
		}
		return c, nil
	}

	// Leading 0x00: extended form. Either Le-only (case 2E, 3 bytes
	// total) or an extended Lc followed by data and an optional
	// 2-byte Le.
	if len(rest) == 3 {
		le := int(rest[1])<<8 | int(rest[2])
		if le == 0 {
			le = 65536
		}
		c.Le = &le
		return c, nil
	}
	if len(rest) < 3 {
		return Command{}, &gperr.MalformedApdu{Reason: "truncated extended-length header"}
	}
	lc := int(rest[1])<<8 | int(rest[2])
	if len(rest) < 3+lc {
		return Command{}, &gperr.MalformedApdu{Reason: "declared extended Lc exceeds remaining bytes"}
	}
	c.Data = rest[3 : 3+lc]
	tail := rest[3+lc:]
	switch len(tail) {
	case 0:
	case 2:
		le := int(tail[0])<<8 | int(tail[1])
		if le == 0 {
			le = 65536
		}
		c.Le = &le
	default:
		return Command{}, &gperr.MalformedApdu{Reason: "unexpected trailing bytes after extended-form data"}
	}
	return c, nil
}
