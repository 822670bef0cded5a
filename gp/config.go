package gp

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gpcm/iso7816"
	"gpcm/scp"
)

// Config holds the parameters a caller assembles before running GP
// operations against a Session: the key version to authenticate with,
// the negotiated security level, the static key set, the security
// domain AID to select first, and the LOAD block size.
type Config struct {
	KVN        byte
	Security   byte
	StaticKeys scp.StaticKeys
	SDAID      []byte
	BlockSize  int
}

// ParseHexBytes decodes a hex string, tolerating internal spaces and an
// optional "0x" prefix.
func ParseHexBytes(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.ReplaceAll(s, "0x", "")
	if s == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	return hex.DecodeString(s)
}

// ParseAIDHex decodes an AID, rejecting lengths ISO 7816-5 disallows.
func ParseAIDHex(s string) ([]byte, error) {
	b, err := ParseHexBytes(s)
	if err != nil {
		return nil, fmt.Errorf("invalid AID hex: %w", err)
	}
	if len(b) < 5 || len(b) > 16 {
		return nil, fmt.Errorf("unexpected AID length %d (expected 5..16 bytes)", len(b))
	}
	return b, nil
}

// Security level bits (§4.8).
const (
	SecurityCMAC = 0x01
	SecurityCENC = 0x02
)

// ParseSecurityLevel parses the CLI-facing security level names.
func ParseSecurityLevel(s string) (byte, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mac", "c-mac", "cmac", "01", "0x01":
		return SecurityCMAC, nil
	case "mac+enc", "cmac+cenc", "c-mac+c-enc", "03", "0x03":
		return SecurityCMAC | SecurityCENC, nil
	default:
		return 0, fmt.Errorf("unknown GP security level: %s (use: mac, mac+enc)", s)
	}
}

// SelectSecurityDomain issues SELECT for the security domain AID
// (ISD or supplementary SD) before the authentication handshake; GP
// cards require the target SD to be the current application before
// INITIALIZE UPDATE (§4.8).
func (s *Session) SelectSecurityDomain(aid []byte) error {
	resp, err := s.Send(iso7816.Select(aid, 0x04, 0x00))
	if err != nil {
		return err
	}
	return requireSuccess("SELECT", resp)
}
