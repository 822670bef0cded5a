package scp

import (
	"bytes"
	"encoding/hex"
	"testing"

	"gpcm/apdu"
	"gpcm/gperr"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestPad80(t *testing.T) {
	tests := []struct {
		in   []byte
		size int
		want []byte
	}{
		{[]byte{1, 2, 3}, 8, []byte{1, 2, 3, 0x80, 0, 0, 0, 0}},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8}, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0x80, 0, 0, 0, 0, 0, 0, 0}},
		{nil, 16, append([]byte{0x80}, make([]byte, 15)...)},
	}
	for _, tt := range tests {
		got := pad80(tt.in, tt.size)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("pad80(%X, %d) = % X, want % X", tt.in, tt.size, got, tt.want)
		}
	}
}

func TestRetailMACDeterministic(t *testing.T) {
	key := mustHex(t, "404142434445464748494A4B4C4D4E4F")
	data := []byte("hello world, this is a test message")
	iv := make([]byte, 8)

	m1 := retailMAC(key, iv, data)
	m2 := retailMAC(key, iv, data)
	if !bytes.Equal(m1, m2) {
		t.Fatal("retailMAC not deterministic")
	}

	altered := append([]byte{}, data...)
	altered[0] ^= 0x01
	m3 := retailMAC(key, iv, altered)
	if bytes.Equal(m1, m3) {
		t.Fatal("retailMAC did not change with altered input")
	}
}

func TestAESCMACKnownAnswer(t *testing.T) {
	// RFC 4493 test vectors.
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")

	empty := aesCMAC(key, nil)
	wantEmpty := mustHex(t, "bb1d6929e95937287fa37d129b756746")
	if !bytes.Equal(empty, wantEmpty) {
		t.Errorf("CMAC(empty) = %X, want %X", empty, wantEmpty)
	}

	m16 := mustHex(t, "6bc1bee22e409f96e93d7e117393172a")
	want16 := mustHex(t, "070a16b46b4d4144f79bdd9dd04a287c")
	got16 := aesCMAC(key, m16)
	if !bytes.Equal(got16, want16) {
		t.Errorf("CMAC(16 bytes) = %X, want %X", got16, want16)
	}

	m40 := mustHex(t, "6bc1bee22e409f96e93d7e117393172aae2d8a571e03ac9c9eb76fac45af8e5130c81c46a35ce411")
	want40 := mustHex(t, "dfa66747de9ae63030ca32611497c827")
	got40 := aesCMAC(key, m40)
	if !bytes.Equal(got40, want40) {
		t.Errorf("CMAC(40 bytes) = %X, want %X", got40, want40)
	}
}

func TestSCP02Handshake(t *testing.T) {
	static := StaticKeys{
		Enc: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
		Mac: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
		Dek: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
	}
	hostChallenge := mustHex(t, "A0A1A2A3A4A5A6A7")

	initUpdate := append([]byte{}, make([]byte, 10)...)
	initUpdate = append(initUpdate, 0xFF, 0x02) // key version, scp id
	initUpdate = append(initUpdate, mustHex(t, "001C")...)
	initUpdate = append(initUpdate, mustHex(t, "7E8283EED5BF")...)
	initUpdate = append(initUpdate, mustHex(t, "5F0E7E5B2B1F4B0A")...)

	result, err := EstablishSCP02(initUpdate, static, hostChallenge, CMAC, DefaultSCP02IParam)
	if err != nil {
		t.Fatalf("EstablishSCP02: %v", err)
	}
	if len(result.HostCryptogram) != 8 {
		t.Fatalf("host cryptogram length = %d", len(result.HostCryptogram))
	}

	// Re-derive independently and confirm determinism against the same
	// constants the spec names.
	seqCounter := initUpdate[12:14]
	sEnc := deriveSCP02Key(static.Enc, scp02DerivSEnc, seqCounter)
	if len(sEnc) != 16 {
		t.Fatalf("sEnc length = %d", len(sEnc))
	}
}

func TestSCP02WrapUnwrapRoundTrip(t *testing.T) {
	static := StaticKeys{
		Enc: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
		Mac: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
		Dek: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
	}
	seqCounter := []byte{0x00, 0x01}
	sEnc := deriveSCP02Key(static.Enc, scp02DerivSEnc, seqCounter)
	sMac := deriveSCP02Key(static.Mac, scp02DerivSMac, seqCounter)
	sRmac := deriveSCP02Key(static.Mac, scp02DerivSRmac, seqCounter)

	ch := &Scp02Channel{sEnc: sEnc, sMac: sMac, sRmac: sRmac, sDek: static.Dek, securityLevel: CMAC | RMAC, iParam: 0x15}

	cmd := apdu.Command{CLA: 0x80, INS: 0xF2, P1: 0x80, P2: 0x00, Data: []byte{0x4F, 0x00}, Le: apdu.Le(0)}
	wrapped, err := ch.Wrap(cmd)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if wrapped.CLA != 0x84 {
		t.Fatalf("wrapped CLA = %02X, want 84", wrapped.CLA)
	}
	if len(wrapped.Data) != len(cmd.Data)+8 {
		t.Fatalf("wrapped data length = %d", len(wrapped.Data))
	}

	cMac := wrapped.Data[len(wrapped.Data)-8:]
	payload := []byte{0xAA, 0xBB}
	respData := append(append([]byte{}, payload...), retailMAC(sRmac, cMac, append(append([]byte{}, payload...), 0x90, 0x00))...)
	resp, err := ch.Unwrap(apdu.Response{Data: respData, SW1: 0x90, SW2: 0x00})
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(resp.Data, payload) {
		t.Fatalf("unwrap payload = %X, want %X", resp.Data, payload)
	}
}

func TestSCP02UnwrapRejectsBadMAC(t *testing.T) {
	ch := &Scp02Channel{
		sEnc: make([]byte, 16), sMac: make([]byte, 16), sRmac: make([]byte, 16), sDek: make([]byte, 16),
		securityLevel: RMAC,
	}
	resp := apdu.Response{Data: append([]byte{0x01, 0x02}, make([]byte, 8)...), SW1: 0x90, SW2: 0x00}
	if _, err := ch.Unwrap(resp); err == nil {
		t.Fatal("expected MacVerifyFailed")
	}
}

func TestSCP03Handshake(t *testing.T) {
	static := StaticKeys{
		Enc: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
		Mac: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
		Dek: mustHex(t, "404142434445464748494A4B4C4D4E4F"),
	}
	hostChallenge := mustHex(t, "A0A1A2A3A4A5A6A7")
	cardChallenge := mustHex(t, "B0B1B2B3B4B5B6B7")

	sEnc, sMac, sRmac := DeriveSCP03SessionKeys(static, hostChallenge, cardChallenge)
	if len(sEnc) != 16 || len(sMac) != 16 || len(sRmac) != 16 {
		t.Fatalf("unexpected session key lengths: %d %d %d", len(sEnc), len(sMac), len(sRmac))
	}

	cardCryptogram := ComputeHostCryptogramSCP03(sMac, cardChallenge, hostChallenge)
	_ = cardCryptogram // distinct derivation context; just exercising determinism below

	hostCryptogram1 := ComputeHostCryptogramSCP03(sMac, hostChallenge, cardChallenge)
	hostCryptogram2 := ComputeHostCryptogramSCP03(sMac, hostChallenge, cardChallenge)
	if !bytes.Equal(hostCryptogram1, hostCryptogram2) {
		t.Fatal("host cryptogram not deterministic")
	}
	if len(hostCryptogram1) != 8 {
		t.Fatalf("host cryptogram length = %d", len(hostCryptogram1))
	}

	// Build a full INITIALIZE UPDATE response and confirm end-to-end
	// establishment when the embedded card cryptogram matches.
	expectedCardCryptogram := sp800108KDF(sMac, 0x00, append(append([]byte{}, hostChallenge...), cardChallenge...), 64)

	initUpdate := append([]byte{}, make([]byte, 10)...)
	initUpdate = append(initUpdate, 0xFF, 0x03, 0x60) // key version, scp id, i_param
	initUpdate = append(initUpdate, cardChallenge...)
	initUpdate = append(initUpdate, expectedCardCryptogram...)

	result, err := EstablishSCP03(initUpdate, static, hostChallenge, CMAC)
	if err != nil {
		t.Fatalf("EstablishSCP03: %v", err)
	}
	if result.IParam != 0x60 {
		t.Fatalf("iParam = %02X, want 60", result.IParam)
	}
}

func TestSCP03HandshakeRejectsBadCryptogram(t *testing.T) {
	static := StaticKeys{
		Enc: make([]byte, 16), Mac: make([]byte, 16), Dek: make([]byte, 16),
	}
	initUpdate := append([]byte{}, make([]byte, 10)...)
	initUpdate = append(initUpdate, 0xFF, 0x03, 0x60)
	initUpdate = append(initUpdate, make([]byte, 8)...) // card challenge
	initUpdate = append(initUpdate, make([]byte, 8)...) // wrong card cryptogram (all zero)
	hostChallenge := make([]byte, 8)

	_, err := EstablishSCP03(initUpdate, static, hostChallenge, CMAC)
	if err == nil {
		t.Fatal("expected CardCryptogramMismatch")
	}
	if _, ok := err.(*gperr.CardCryptogramMismatch); !ok {
		t.Fatalf("expected *gperr.CardCryptogramMismatch, got %T: %v", err, err)
	}
}

func TestSCP03WrapEncCounterMonotonic(t *testing.T) {
	ch := &Scp03Channel{
		sEnc: make([]byte, 16), sMac: make([]byte, 16), sRmac: make([]byte, 16),
		securityLevel: CMAC | CDecryption,
		macChain:      make([]byte, 16),
		encCounter:    1,
	}
	for i := 0; i < 3; i++ {
		before := ch.encCounter
		_, err := ch.Wrap(apdu.Command{CLA: 0x80, INS: 0xE6, Data: []byte{0x01, 0x02, 0x03}})
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		if ch.encCounter != before+1 {
			t.Fatalf("enc counter did not advance monotonically: %d -> %d", before, ch.encCounter)
		}
	}
}

func TestSCP03WrapPassthroughWithoutCMAC(t *testing.T) {
	ch := &Scp03Channel{
		sEnc: make([]byte, 16), sMac: make([]byte, 16), sRmac: make([]byte, 16),
		securityLevel: 0,
		macChain:      make([]byte, 16),
		encCounter:    1,
	}
	cmd := apdu.Command{CLA: 0x00, INS: 0xB0, P1: 0, P2: 0, Le: apdu.Le(0)}
	got, err := ch.Wrap(cmd)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if got.CLA != cmd.CLA || len(got.Data) != 0 {
		t.Fatalf("expected passthrough, got %+v", got)
	}
}

func TestSCP03UnwrapRejectsBadMAC(t *testing.T) {
	ch := &Scp03Channel{
		sEnc: make([]byte, 16), sMac: make([]byte, 16), sRmac: make([]byte, 16),
		securityLevel: RMAC,
		macChain:      make([]byte, 16),
	}
	resp := apdu.Response{Data: append([]byte{0x01, 0x02}, make([]byte, 8)...), SW1: 0x90, SW2: 0x00}
	if _, err := ch.Unwrap(resp); err == nil {
		t.Fatal("expected MacVerifyFailed")
	}
}
