package tlv

import (
	"bytes"
	"testing"
)

func TestParseBasic(t *testing.T) {
	// 6F 10 84 08 A0 00 00 00 03 00 00 00 A5 04 9F 65 01 FF
	// FCI template -> AID, FCI proprietary template -> 9F65
	data := []byte{
		0x6F, 0x10,
		0x84, 0x08, 0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		0xA5, 0x04,
		0x9F, 0x65, 0x01, 0xFF,
	}
	nodes, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Tag != 0x6F {
		t.Fatalf("unexpected top level: %+v", nodes)
	}
	root := nodes[0]
	aid := root.Find(0x84)
	if aid == nil || !bytes.Equal(aid.Value, []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00}) {
		t.Fatalf("AID mismatch: %+v", aid)
	}
	leaf := root.FindRecursive(0x9F65)
	if leaf == nil || !bytes.Equal(leaf.Value, []byte{0xFF}) {
		t.Fatalf("9F65 mismatch: %+v", leaf)
	}
}

func TestParseSkipsFiller(t *testing.T) {
	data := []byte{0x00, 0xFF, 0x9F, 0x70, 0x01, 0x07, 0x00}
	nodes, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Tag != 0x9F70 {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
}

func TestParseLongFormLength(t *testing.T) {
	value := bytes.Repeat([]byte{0xAB}, 200)
	data := append([]byte{0xC1, 0x81, 0xC8}, value...)
	nodes, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 1 || !bytes.Equal(nodes[0].Value, value) {
		t.Fatalf("long-form length parse mismatch")
	}
}

func TestParseTruncatedLengthFails(t *testing.T) {
	data := []byte{0xC1, 0x05, 0x01, 0x02}
	if _, err := Parse(data); err == nil {
		t.Fatal("expected MalformedTlv for truncated value")
	}
}

func TestParseUnterminatedMultiByteTagFails(t *testing.T) {
	data := []byte{0x9F}
	if _, err := Parse(data); err == nil {
		t.Fatal("expected MalformedTlv for unterminated tag")
	}
}

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x84, 0x02, 0xAA, 0xBB},
		{0x6F, 0x04, 0x84, 0x02, 0xAA, 0xBB},
		{0x9F, 0x70, 0x01, 0x07},
		{0xE3, 0x0B, 0x4F, 0x02, 0xA0, 0x00, 0xC5, 0x01, 0x80, 0x9F, 0x70, 0x01, 0x07},
	}
	for i, data := range cases {
		nodes, err := Parse(data)
		if err != nil {
			t.Fatalf("case %d: Parse: %v", i, err)
		}
		var emitted []byte
		for _, n := range nodes {
			emitted = append(emitted, Emit(n)...)
		}
		again, err := Parse(emitted)
		if err != nil {
			t.Fatalf("case %d: reparse: %v", i, err)
		}
		if len(again) != len(nodes) {
			t.Fatalf("case %d: node count changed: %d vs %d", i, len(again), len(nodes))
		}
		for j := range nodes {
			if again[j].Tag != nodes[j].Tag {
				t.Fatalf("case %d node %d: tag mismatch", i, j)
			}
		}
	}
}

func TestFindRecursiveMiss(t *testing.T) {
	nodes, err := Parse([]byte{0x84, 0x02, 0xAA, 0xBB})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if nodes[0].FindRecursive(0x9F70) != nil {
		t.Fatal("expected nil for missing tag")
	}
}
