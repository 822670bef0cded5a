package scp

import (
	"crypto/subtle"
	"fmt"

	"gpcm/apdu"
	"gpcm/gperr"
)

// StaticKeys is the static key set used to open a secure channel.
type StaticKeys struct {
	Enc []byte
	Mac []byte
	Dek []byte
}

// i-parameter bit masks (§4.6).
const (
	iParamMacFlavor   = 0x01
	iParamEncryptICV  = 0x04
	iParamRMAC        = 0x10
	iParamKnownChalng = 0x40
)

var (
	scp02DerivSEnc  = []byte{0x01, 0x82}
	scp02DerivSMac  = []byte{0x01, 0x01}
	scp02DerivSRmac = []byte{0x01, 0x02}
	scp02DerivSDek  = []byte{0x01, 0x81}
)

// Scp02Result is returned by EstablishSCP02: the parsed handshake fields
// plus the ready-to-install channel.
type Scp02Result struct {
	KeyInfo        []byte
	SeqCounter     []byte
	HostCryptogram []byte
	Channel        *Scp02Channel
}

// deriveSCP02Key derives one SCP02 session key: 3DES-CBC(static, IV=0,
// constant || seq_counter || 0x00^12).
func deriveSCP02Key(static, constant, seqCounter []byte) []byte {
	block := make([]byte, 0, 16)
	block = append(block, constant...)
	block = append(block, seqCounter...)
	block = append(block, make([]byte, 12)...)
	iv := make([]byte, 8)
	return tdesCBCEncrypt(static, iv, block)
}

// DefaultSCP02IParam is the i-parameter EstablishSCP02 assumes when the
// caller doesn't have one from GET DATA 00E0 key info yet (modified APDU
// format, ICV encryption, R-MAC — GP 2.3 Table D-6). INITIALIZE UPDATE's
// response carries no i-parameter for SCP02 (unlike SCP03's key info,
// which does); a card whose actual i-parameter differs needs it passed
// explicitly to EstablishSCP02.
const DefaultSCP02IParam = 0x15

// EstablishSCP02 parses an INITIALIZE UPDATE response for SCP02, derives
// session keys, verifies the card cryptogram, and returns a channel ready
// to be installed once EXTERNAL AUTHENTICATE succeeds. iParam controls
// ICV handling and MAC scope for the resulting channel (GP 2.3 Table
// D-6); pass DefaultSCP02IParam when the caller has no better value.
func EstablishSCP02(initUpdateData []byte, static StaticKeys, hostChallenge []byte, securityLevel, iParam byte) (*Scp02Result, error) {
	if len(initUpdateData) < 28 {
		return nil, &gperr.MalformedApdu{Reason: fmt.Sprintf("truncated INITIALIZE UPDATE response: %d bytes", len(initUpdateData))}
	}

	keyInfo := initUpdateData[10:12]
	seqCounter := initUpdateData[12:14]
	cardChallenge := initUpdateData[14:20]
	cardCryptogram := initUpdateData[20:28]

	sEnc := deriveSCP02Key(static.Enc, scp02DerivSEnc, seqCounter)
	sMac := deriveSCP02Key(static.Mac, scp02DerivSMac, seqCounter)
	sRmac := deriveSCP02Key(static.Mac, scp02DerivSRmac, seqCounter)
	sDek := deriveSCP02Key(static.Dek, scp02DerivSDek, seqCounter)

	expectedCryptogram := scp02CardCryptogram(sEnc, hostChallenge, seqCounter, cardChallenge)
	if !constantTimeEqual(expectedCryptogram, cardCryptogram) {
		return nil, &gperr.CardCryptogramMismatch{}
	}

	hostCryptogram := scp02HostCryptogram(sEnc, seqCounter, cardChallenge, hostChallenge)

	channel := &Scp02Channel{
		sEnc: sEnc, sMac: sMac, sRmac: sRmac, sDek: sDek,
		securityLevel: securityLevel,
		iParam:        iParam,
	}

	return &Scp02Result{
		KeyInfo:        keyInfo,
		SeqCounter:     seqCounter,
		HostCryptogram: hostCryptogram,
		Channel:        channel,
	}, nil
}

func scp02CardCryptogram(sEnc, hostChallenge, seqCounter, cardChallenge []byte) []byte {
	data := append(append(append([]byte{}, hostChallenge...), seqCounter...), cardChallenge...)
	return fullTDESMAC(sEnc, make([]byte, 8), data)
}

func scp02HostCryptogram(sEnc, seqCounter, cardChallenge, hostChallenge []byte) []byte {
	data := append(append(append([]byte{}, seqCounter...), cardChallenge...), hostChallenge...)
	return fullTDESMAC(sEnc, make([]byte, 8), data)
}

// Scp02Channel is the SCP02 secure-channel state (§3, §4.6).
type Scp02Channel struct {
	sEnc, sMac, sRmac, sDek []byte
	securityLevel           byte
	iParam                  byte

	icv       [8]byte
	lastCMac  [8]byte
	hasWrapped bool
	closed    bool
}

func (s *Scp02Channel) SecurityLevel() byte { return s.securityLevel }
func (s *Scp02Channel) DEK() []byte         { return s.sDek }

func (s *Scp02Channel) Close() {
	zero(s.sEnc)
	zero(s.sMac)
	zero(s.sRmac)
	zero(s.sDek)
	s.closed = true
}

func (s *Scp02Channel) nextICV() [8]byte {
	if !s.hasWrapped {
		// Initial ICV is zero and is never encrypted.
		return [8]byte{}
	}
	if s.iParam&iParamEncryptICV != 0 {
		enc := desECBEncryptK1(s.sMac, s.lastCMac[:])
		var out [8]byte
		copy(out[:], enc)
		return out
	}
	return s.lastCMac
}

// Wrap applies C-MAC (and optionally C-DECRYPTION) to an outgoing
// command, per §4.6's five-step procedure.
func (s *Scp02Channel) Wrap(c apdu.Command) (apdu.Command, error) {
	if s.closed {
		panic("scp: Wrap on closed SCP02 channel")
	}

	data := c.Data
	if s.securityLevel&CDecryption != 0 && len(data) > 0 && c.INS != 0x82 {
		data = tdesCBCEncrypt(s.sEnc, make([]byte, 8), pad80(data, 8))
	}

	cla := c.CLA | 0x04
	lc := len(data) + 8

	var macInput []byte
	if s.iParam&iParamMacFlavor != 0 {
		macInput = []byte{cla, c.INS, c.P1, c.P2, byte(lc)}
	} else {
		macInput = []byte{c.CLA, c.INS, c.P1, c.P2, byte(len(c.Data))}
	}
	macInput = append(macInput, data...)

	icv := s.nextICV()
	cMac := retailMAC(s.sMac, icv[:], macInput)

	copy(s.lastCMac[:], cMac)
	s.hasWrapped = true

	wrapped := apdu.Command{
		CLA:  cla,
		INS:  c.INS,
		P1:   c.P1,
		P2:   c.P2,
		Data: append(append([]byte{}, data...), cMac...),
		Le:   c.Le,
	}
	return wrapped, nil
}

// Unwrap verifies R-MAC on an incoming response, per §4.6. A response
// whose data is shorter than 8 bytes is returned unchanged, without
// verification.
func (s *Scp02Channel) Unwrap(r apdu.Response) (apdu.Response, error) {
	if s.closed {
		panic("scp: Unwrap on closed SCP02 channel")
	}
	if s.securityLevel&RMAC == 0 {
		return r, nil
	}
	if len(r.Data) < 8 {
		return r, nil
	}
	payload := r.Data[:len(r.Data)-8]
	rMac := r.Data[len(r.Data)-8:]

	macInput := append(append([]byte{}, payload...), r.SW1, r.SW2)
	expected := retailMAC(s.sRmac, s.lastCMac[:], macInput)
	if !constantTimeEqual(expected, rMac) {
		return apdu.Response{}, &gperr.MacVerifyFailed{}
	}
	return apdu.Response{Data: payload, SW1: r.SW1, SW2: r.SW2}, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
