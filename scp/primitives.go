// Package scp implements the GlobalPlatform secure-channel crypto
// primitives and the SCP02/SCP03 channel variants built on them (§4.5,
// §4.6, §4.7). Both channels satisfy the Channel interface, the sum type
// the session controller installs on a Transport after a successful
// handshake.
package scp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
)

// Security level flags (GP 2.3 Table 11-18).
const (
	CMAC        = 0x01
	CDecryption = 0x02
	RMAC        = 0x10
	REncryption = 0x20
)

// pad80 applies ISO 9797-1 Method 2 padding: append 0x80, then the
// minimal number of 0x00 bytes to reach a multiple of blockSize.
func pad80(data []byte, blockSize int) []byte {
	padded := make([]byte, len(data), len(data)+blockSize)
	copy(padded, data)
	padded = append(padded, 0x80)
	for len(padded)%blockSize != 0 {
		padded = append(padded, 0x00)
	}
	return padded
}

// expand2Key3DES expands a 16-byte two-key 3DES key into the 24-byte
// form (K1 || K2 || K1) crypto/des.NewTripleDESCipher expects.
func expand2Key3DES(key []byte) []byte {
	if len(key) == 24 {
		return key
	}
	out := make([]byte, 24)
	copy(out, key)
	copy(out[16:], key[:8])
	return out
}

// tdesECBEncryptBlocks encrypts data (a multiple of 8 bytes) under 3DES
// in ECB mode.
func tdesECBEncryptBlocks(key, data []byte) []byte {
	block, err := des.NewTripleDESCipher(expand2Key3DES(key))
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += des.BlockSize {
		block.Encrypt(out[i:i+des.BlockSize], data[i:i+des.BlockSize])
	}
	return out
}

// tdesCBCEncrypt encrypts data (a multiple of 8 bytes) under 3DES-CBC
// with the given 8-byte IV.
func tdesCBCEncrypt(key, iv, data []byte) []byte {
	block, err := des.NewTripleDESCipher(expand2Key3DES(key))
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out
}

// desECBEncryptK1 encrypts an 8-byte block under single DES using only
// K1 (the first 8 bytes of a 2-key 3DES key) — the "des_ecb_k1" helper
// used by SCP02's ICV-encryption i-parameter bit.
func desECBEncryptK1(key, block []byte) []byte {
	c, err := des.NewCipher(key[:8])
	if err != nil {
		panic(err)
	}
	out := make([]byte, des.BlockSize)
	c.Encrypt(out, block)
	return out
}

// fullTDESMAC computes the ISO 9797-1 Algorithm 1 full-3DES CBC-MAC:
// pad, CBC-encrypt under IV, return the last 8-byte block.
func fullTDESMAC(key, iv, data []byte) []byte {
	padded := pad80(data, des.BlockSize)
	enc := tdesCBCEncrypt(key, iv, padded)
	return enc[len(enc)-des.BlockSize:]
}

// retailMAC computes the ISO 9797-1 Algorithm 3 Retail MAC: pad,
// single-DES-CBC (K1 only) for all but the last block, then a full
// 2-key-3DES operation on the last block.
func retailMAC(key, iv, data []byte) []byte {
	padded := pad80(data, des.BlockSize)

	k1, err := des.NewCipher(key[:8])
	if err != nil {
		panic(err)
	}
	chain := make([]byte, des.BlockSize)
	copy(chain, iv)

	n := len(padded) / des.BlockSize
	for i := 0; i < n-1; i++ {
		block := padded[i*des.BlockSize : (i+1)*des.BlockSize]
		xored := xorBytes(chain, block)
		out := make([]byte, des.BlockSize)
		k1.Encrypt(out, xored)
		chain = out
	}

	last := padded[(n-1)*des.BlockSize:]
	xored := xorBytes(chain, last)
	return tdesECBEncryptBlocks(key, xored)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// aesECBEncryptBlock encrypts a single 16-byte block under AES-ECB.
func aesECBEncryptBlock(key, block []byte) []byte {
	c, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out
}

// aesCBCEncrypt encrypts data (a multiple of 16 bytes) under AES-CBC
// with the given 16-byte IV.
func aesCBCEncrypt(key, iv, data []byte) []byte {
	c, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c, iv).CryptBlocks(out, data)
	return out
}

// leftShiftOneBit shifts a byte slice left by one bit, returning the
// carry-out bit (0 or 1). Used by the RFC 4493 subkey generation.
func leftShiftOneBit(b []byte) ([]byte, byte) {
	out := make([]byte, len(b))
	var carry byte
	for i := len(b) - 1; i >= 0; i-- {
		out[i] = (b[i] << 1) | carry
		carry = b[i] >> 7
	}
	return out, carry
}

const aesCmacRB = 0x87

// aesCMAC computes AES-CMAC (RFC 4493) over data for the given key
// (any AES key length: 128/192/256 bits).
func aesCMAC(key, data []byte) []byte {
	zero := make([]byte, aes.BlockSize)
	l := aesECBEncryptBlock(key, zero)

	k1, carry := leftShiftOneBit(l)
	if carry == 1 {
		k1[len(k1)-1] ^= aesCmacRB
	}
	k2, carry := leftShiftOneBit(k1)
	if carry == 1 {
		k2[len(k2)-1] ^= aesCmacRB
	}

	var mLast []byte
	n := (len(data) + aes.BlockSize - 1) / aes.BlockSize
	var padded bool
	if n == 0 {
		n = 1
		padded = true
	} else if len(data)%aes.BlockSize != 0 {
		padded = true
	}

	if padded {
		lastStart := (n - 1) * aes.BlockSize
		var lastBlock []byte
		if lastStart < len(data) {
			lastBlock = data[lastStart:]
		}
		lastBlock = pad80CMAC(lastBlock)
		mLast = xorBytes(lastBlock, k2)
	} else {
		lastStart := (n - 1) * aes.BlockSize
		mLast = xorBytes(data[lastStart:lastStart+aes.BlockSize], k1)
	}

	x := make([]byte, aes.BlockSize)
	for i := 0; i < n-1; i++ {
		block := data[i*aes.BlockSize : (i+1)*aes.BlockSize]
		x = aesECBEncryptBlock(key, xorBytes(x, block))
	}
	return aesECBEncryptBlock(key, xorBytes(x, mLast))
}

// pad80CMAC applies the CMAC subkey padding (10...0 to 16 bytes), which
// happens to be the same ISO 9797-1 Method 2 rule as pad80 elsewhere in
// this package but operating on a possibly-empty final block.
func pad80CMAC(block []byte) []byte {
	out := make([]byte, aes.BlockSize)
	copy(out, block)
	out[len(block)] = 0x80
	return out
}

// sp800108KDF implements the NIST SP 800-108 counter-mode KDF with
// AES-CMAC as the PRF, as SCP03 uses it (§4.7): iterate counter = 1..N
// over a fixed 32-byte derivation-data layout, concatenate, and truncate
// to lengthBits/8 bytes.
func sp800108KDF(key []byte, constant byte, context []byte, lengthBits int) []byte {
	lengthBytes := (lengthBits + 7) / 8
	nBlocks := (lengthBytes + aes.BlockSize - 1) / aes.BlockSize

	var result []byte
	for counter := 1; counter <= nBlocks; counter++ {
		data := make([]byte, 0, 32)
		data = append(data, make([]byte, 11)...)
		data = append(data, constant, 0x00, byte(lengthBits>>8), byte(lengthBits), byte(counter))
		data = append(data, context...)
		result = append(result, aesCMAC(key, data)...)
	}
	return result[:lengthBytes]
}
