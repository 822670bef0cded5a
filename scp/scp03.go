package scp

import (
	"fmt"

	"gpcm/apdu"
	"gpcm/gperr"
)

// KDF derivation constants (§4.7).
const (
	scp03DerivCardCryptogram = 0x00
	scp03DerivHostCryptogram = 0x01
	scp03DerivSEnc           = 0x04
	scp03DerivSMac           = 0x06
	scp03DerivSRmac          = 0x07
)

// Scp03Result is returned by EstablishSCP03.
type Scp03Result struct {
	KeyInfo        []byte
	IParam         byte
	HostCryptogram []byte
	Channel        *Scp03Channel
}

// DeriveSCP03SessionKeys derives S-ENC/S-MAC/S-RMAC from the static keys
// and the two handshake challenges (§4.7). Session key length matches
// the static key length (128/192/256 bits).
func DeriveSCP03SessionKeys(static StaticKeys, hostChallenge, cardChallenge []byte) (sEnc, sMac, sRmac []byte) {
	context := append(append([]byte{}, hostChallenge...), cardChallenge...)
	keyBits := len(static.Enc) * 8
	sEnc = sp800108KDF(static.Enc, scp03DerivSEnc, context, keyBits)
	sMac = sp800108KDF(static.Mac, scp03DerivSMac, context, keyBits)
	sRmac = sp800108KDF(static.Mac, scp03DerivSRmac, context, keyBits)
	return
}

// VerifyCardCryptogramSCP03 checks the card cryptogram from INITIALIZE
// UPDATE against the session S-MAC.
func VerifyCardCryptogramSCP03(sMac, hostChallenge, cardChallenge, received []byte) bool {
	context := append(append([]byte{}, hostChallenge...), cardChallenge...)
	expected := sp800108KDF(sMac, scp03DerivCardCryptogram, context, 64)
	return constantTimeEqual(expected, received)
}

// ComputeHostCryptogramSCP03 computes the host cryptogram for EXTERNAL
// AUTHENTICATE.
func ComputeHostCryptogramSCP03(sMac, hostChallenge, cardChallenge []byte) []byte {
	context := append(append([]byte{}, hostChallenge...), cardChallenge...)
	return sp800108KDF(sMac, scp03DerivHostCryptogram, context, 64)
}

// EstablishSCP03 parses an INITIALIZE UPDATE response for SCP03 (S8
// challenge/cryptogram layout only — see SPEC_FULL.md §4.7), derives
// session keys, verifies the card cryptogram, and returns a channel
// ready to be installed once EXTERNAL AUTHENTICATE succeeds.
func EstablishSCP03(initUpdateData []byte, static StaticKeys, hostChallenge []byte, securityLevel byte) (*Scp03Result, error) {
	if len(initUpdateData) < 29 {
		return nil, &gperr.MalformedApdu{Reason: fmt.Sprintf("truncated INITIALIZE UPDATE response: %d bytes", len(initUpdateData))}
	}

	keyInfo := initUpdateData[10:13]
	iParam := keyInfo[2]
	cardChallenge := initUpdateData[13:21]
	cardCryptogram := initUpdateData[21:29]

	sEnc, sMac, sRmac := DeriveSCP03SessionKeys(static, hostChallenge, cardChallenge)

	if !VerifyCardCryptogramSCP03(sMac, hostChallenge, cardChallenge, cardCryptogram) {
		return nil, &gperr.CardCryptogramMismatch{}
	}

	hostCryptogram := ComputeHostCryptogramSCP03(sMac, hostChallenge, cardChallenge)

	channel := &Scp03Channel{
		sEnc: sEnc, sMac: sMac, sRmac: sRmac, dek: append([]byte{}, static.Dek...),
		securityLevel: securityLevel,
		macChain:      make([]byte, 16),
		encCounter:    1,
	}

	return &Scp03Result{
		KeyInfo:        keyInfo,
		IParam:         iParam,
		HostCryptogram: hostCryptogram,
		Channel:        channel,
	}, nil
}

// Scp03Channel is the SCP03 secure-channel state (§3, §4.7).
type Scp03Channel struct {
	sEnc, sMac, sRmac, dek []byte
	securityLevel          byte

	macChain   []byte
	encCounter uint64
	closed     bool
}

func (s *Scp03Channel) SecurityLevel() byte { return s.securityLevel }
func (s *Scp03Channel) DEK() []byte         { return s.dek }

func (s *Scp03Channel) Close() {
	zero(s.sEnc)
	zero(s.sMac)
	zero(s.sRmac)
	zero(s.dek)
	zero(s.macChain)
	s.closed = true
}

func (s *Scp03Channel) nextEncICV() []byte {
	block := make([]byte, 16)
	for i := 0; i < 8; i++ {
		block[15-i] = byte(s.encCounter >> (8 * i))
	}
	s.encCounter++
	return aesECBEncryptBlock(s.sEnc, block)
}

// Wrap applies C-MAC (and optionally C-DECRYPTION) to an outgoing
// command, per §4.7's five-step procedure. Passes the command through
// unchanged when C-MAC is not required and the instruction is not
// EXTERNAL AUTHENTICATE.
func (s *Scp03Channel) Wrap(c apdu.Command) (apdu.Command, error) {
	if s.closed {
		panic("scp: Wrap on closed SCP03 channel")
	}
	if s.securityLevel&CMAC == 0 && c.INS != 0x82 {
		return c, nil
	}

	data := c.Data
	if s.securityLevel&CDecryption != 0 && len(data) > 0 {
		icv := s.nextEncICV()
		data = aesCBCEncrypt(s.sEnc, icv, pad80(data, 16))
	}

	cla := c.CLA | 0x04
	lc := len(data) + 8

	macInput := append([]byte{}, s.macChain...)
	macInput = append(macInput, cla, c.INS, c.P1, c.P2, byte(lc))
	macInput = append(macInput, data...)

	full := aesCMAC(s.sMac, macInput)
	s.macChain = full
	cMac := full[:8]

	return apdu.Command{
		CLA:  cla,
		INS:  c.INS,
		P1:   c.P1,
		P2:   c.P2,
		Data: append(append([]byte{}, data...), cMac...),
		Le:   c.Le,
	}, nil
}

// Unwrap verifies R-MAC on an incoming response, per §4.7. A response
// whose data is shorter than 8 bytes is returned unchanged, without
// verification.
func (s *Scp03Channel) Unwrap(r apdu.Response) (apdu.Response, error) {
	if s.closed {
		panic("scp: Unwrap on closed SCP03 channel")
	}
	if s.securityLevel&RMAC == 0 {
		return r, nil
	}
	if len(r.Data) < 8 {
		return r, nil
	}
	payload := r.Data[:len(r.Data)-8]
	rMac := r.Data[len(r.Data)-8:]

	macInput := append(append([]byte{}, s.macChain...), payload...)
	macInput = append(macInput, r.SW1, r.SW2)
	expected := aesCMAC(s.sRmac, macInput)[:8]
	if !constantTimeEqual(expected, rMac) {
		return apdu.Response{}, &gperr.MacVerifyFailed{}
	}
	return apdu.Response{Data: payload, SW1: r.SW1, SW2: r.SW2}, nil
}
