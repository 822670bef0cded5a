package gp

import "testing"

func TestBuildPutKeyDataDES(t *testing.T) {
	dek := make([]byte, 16)
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	data, err := BuildPutKeyData(0x01, dek, []KeyComponent{{Type: KeyType3DESCBC, Key: key}}, false, KCVPolicyCurrent)
	if err != nil {
		t.Fatalf("BuildPutKeyData: %v", err)
	}
	if data[0] != 0x01 {
		t.Fatalf("new KVN = %02X, want 01", data[0])
	}
	if data[1] != KeyType3DESCBC {
		t.Fatalf("key type = %02X", data[1])
	}
	keyLen := int(data[2])
	if keyLen != 16 {
		t.Fatalf("encrypted key length = %d, want 16", keyLen)
	}
	// new_kvn(1) + type(1) + length(1) + encrypted(16) + kcvLen(1) + kcv(3)
	wantLen := 1 + 1 + 1 + 16 + 1 + 3
	if len(data) != wantLen {
		t.Fatalf("total key block length = %d, want %d", len(data), wantLen)
	}
}

func TestBuildPutKeyDataAES(t *testing.T) {
	dek := make([]byte, 16)
	key := make([]byte, 16)
	data, err := BuildPutKeyData(0x02, dek, []KeyComponent{{Type: KeyTypeAES, Key: key}}, true, KCVPolicyCurrent)
	if err != nil {
		t.Fatalf("BuildPutKeyData: %v", err)
	}
	if data[0] != 0x02 || data[1] != KeyTypeAES {
		t.Fatalf("header = % X", data[:2])
	}
	// new_kvn(1) + type(1) + length(1, covers key_value_length+encrypted) + key_value_length(1) + encrypted(32: pad80 adds a full block to a 16-byte key) + kcvLen(1) + kcv(3)
	wantLen := 1 + 1 + 1 + 1 + 32 + 1 + 3
	if len(data) != wantLen {
		t.Fatalf("total key block length = %d, want %d", len(data), wantLen)
	}
}

func TestBuildPutKeyDataMultipleComponents(t *testing.T) {
	dek := make([]byte, 16)
	key1 := make([]byte, 16)
	key2 := make([]byte, 16)
	for i := range key2 {
		key2[i] = 0xAA
	}
	data, err := BuildPutKeyData(0x01, dek, []KeyComponent{
		{Type: KeyType3DESCBC, Key: key1},
		{Type: KeyType3DESCBC, Key: key2},
	}, false, KCVPolicyCurrent)
	if err != nil {
		t.Fatalf("BuildPutKeyData: %v", err)
	}
	blockLen := 1 + 1 + 16 + 1 + 3
	wantLen := 1 + 2*blockLen
	if len(data) != wantLen {
		t.Fatalf("total length = %d, want %d", len(data), wantLen)
	}
}
