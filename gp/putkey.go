package gp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
)

// PUT KEY key-type bytes (GP 2.3 Table 11-66, the ones this module emits).
const (
	KeyTypeDES     = 0x80
	KeyType3DESCBC = 0x82
	KeyTypeAES     = 0x88
)

// KeyComponent is one key to load in a PUT KEY command.
type KeyComponent struct {
	Type byte // KeyTypeDES, KeyType3DESCBC, or KeyTypeAES
	Key  []byte
}

// KCVPolicy selects the legacy-vs-current AES KCV convention (§4.9,
// §9 open question): AES KCV is computed by encrypting a block of this
// byte repeated, truncated to 3 bytes. GlobalPlatform Amendment A moved
// from 0x00^16 to 0x01^16; some fielded cards still expect the legacy
// block.
type KCVPolicy byte

const (
	KCVPolicyCurrent KCVPolicy = 0x01
	KCVPolicyLegacy  KCVPolicy = 0x00
)

func pad80ForKCV(size int, fill byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = fill
	}
	return b
}

// desKeyBlock builds one DES/3DES key-block entry (§4.9): encrypted
// under the DEK, the key's own length, a fixed 0x03 KCV-length byte, and
// the 3-byte KCV.
func desKeyBlock(dek []byte, comp KeyComponent) ([]byte, error) {
	encrypted, err := tdesECB(dek, comp.Key)
	if err != nil {
		return nil, err
	}
	kcv, err := tdesECB(comp.Key, make([]byte, 8))
	if err != nil {
		return nil, err
	}
	block := []byte{comp.Type, byte(len(encrypted))}
	block = append(block, encrypted...)
	block = append(block, 0x03)
	block = append(block, kcv[:3]...)
	return block, nil
}

// aesKeyBlock builds one AES key-block entry (§4.9): AES-CBC(DEK,
// IV=0, pad80(key)) plus the key's plaintext length, a 0x03 marker, and
// a 3-byte KCV computed by AES-ECB over a fixed-fill 16-byte block.
func aesKeyBlock(dek []byte, comp KeyComponent, policy KCVPolicy) ([]byte, error) {
	padded := pad80(comp.Key, 16)
	encrypted, err := aesCBCEncryptPutKey(dek, padded)
	if err != nil {
		return nil, err
	}
	kcvBlock := pad80ForKCV(16, byte(policy))
	kcv, err := aesECBPutKey(comp.Key, kcvBlock)
	if err != nil {
		return nil, err
	}
	block := []byte{comp.Type, byte(len(encrypted) + 1), byte(len(comp.Key))}
	block = append(block, encrypted...)
	block = append(block, 0x03)
	block = append(block, kcv[:3]...)
	return block, nil
}

func tdesECB(key, data []byte) ([]byte, error) {
	full := key
	if len(full) == 16 {
		full = append(append([]byte{}, key...), key[:8]...)
	}
	block, err := des.NewTripleDESCipher(full)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += des.BlockSize {
		block.Encrypt(out[i:i+des.BlockSize], data[i:i+des.BlockSize])
	}
	return out, nil
}

func aesCBCEncryptPutKey(key, data []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c, make([]byte, 16)).CryptBlocks(out, data)
	return out, nil
}

func aesECBPutKey(key, block []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

func pad80(data []byte, blockSize int) []byte {
	padded := make([]byte, len(data), len(data)+blockSize)
	copy(padded, data)
	padded = append(padded, 0x80)
	for len(padded)%blockSize != 0 {
		padded = append(padded, 0x00)
	}
	return padded
}

// BuildPutKeyData assembles a full PUT KEY data field: new_kvn followed
// by one key-block per component (§4.9). aesFormat selects the AES or
// DES/3DES block format for every component; GlobalPlatform does not
// mix formats within a single PUT KEY command.
func BuildPutKeyData(newKVN byte, dek []byte, components []KeyComponent, aesFormat bool, kcvPolicy KCVPolicy) ([]byte, error) {
	data := []byte{newKVN}
	for _, comp := range components {
		var block []byte
		var err error
		if aesFormat {
			block, err = aesKeyBlock(dek, comp, kcvPolicy)
		} else {
			block, err = desKeyBlock(dek, comp)
		}
		if err != nil {
			return nil, err
		}
		data = append(data, block...)
	}
	return data, nil
}

// PutKey issues PUT KEY with the given data field, built via
// BuildPutKeyData.
func (s *Session) PutKey(oldKVN, keyID byte, data []byte, multiple bool) error {
	resp, err := s.Send(cmdPutKey(oldKVN, keyID, data, multiple))
	if err != nil {
		return err
	}
	return requireSuccess("PUT KEY", resp)
}
