// Package gptest provides a deterministic in-memory Transport double for
// exercising the gp/scp packages without a physical reader, grounded on
// the teacher's testing.Suite/testing.Report shape (testing/suite.go,
// testing/report.go) but repurposed from SIM conformance reporting to
// GP request/response scripting.
package gptest

import (
	"encoding/hex"
	"fmt"
)

// Exchange is one scripted command/response pair. Cmd, when non-nil,
// must match the raw bytes FakeTransport.Transmit receives exactly;
// when nil, any command matches (useful for handshake steps where the
// caller doesn't want to hand-encode the exact wire bytes).
type Exchange struct {
	Cmd  []byte
	Resp []byte
	Err  error
}

// FakeTransport replays a fixed script of responses in order, failing
// loudly on a mismatch or exhaustion — the same "scripted card" shape as
// the teacher's conformance-test fixtures, adapted from SIM command
// scripting to GP command/response scripting.
type FakeTransport struct {
	script []Exchange
	pos    int
	sent   [][]byte
}

// NewFakeTransport builds a FakeTransport that replays script in order.
func NewFakeTransport(script []Exchange) *FakeTransport {
	return &FakeTransport{script: script}
}

// Transmit implements gp.Transport.
func (f *FakeTransport) Transmit(raw []byte) ([]byte, error) {
	f.sent = append(f.sent, append([]byte{}, raw...))
	if f.pos >= len(f.script) {
		return nil, fmt.Errorf("gptest: script exhausted at call %d (sent %s)", f.pos, hex.EncodeToString(raw))
	}
	ex := f.script[f.pos]
	f.pos++
	if ex.Cmd != nil && hex.EncodeToString(ex.Cmd) != hex.EncodeToString(raw) {
		return nil, fmt.Errorf("gptest: call %d expected %s, got %s", f.pos-1, hex.EncodeToString(ex.Cmd), hex.EncodeToString(raw))
	}
	if ex.Err != nil {
		return nil, ex.Err
	}
	return ex.Resp, nil
}

// Sent returns every raw command this transport has received, in order.
func (f *FakeTransport) Sent() [][]byte { return f.sent }

// Exhausted reports whether every scripted exchange has been consumed.
func (f *FakeTransport) Exhausted() bool { return f.pos == len(f.script) }
