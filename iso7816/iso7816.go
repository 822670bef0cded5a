// Package iso7816 provides thin constructors for the generic ISO 7816-4
// file-access commands (SELECT, GET DATA, PUT DATA, READ BINARY, UPDATE
// BINARY). These are plain APDU framers; none of them carry secure
// messaging or GlobalPlatform semantics — see package gp for that.
package iso7816

import "gpcm/apdu"

// Select builds a SELECT (00 A4) command by AID, P1/P2 as given by the
// caller (e.g. 0x04/0x00 for "select by name, first occurrence"). Le is
// present with value 0 unless the FCI-absent bit (0x0C) of P2 is set.
func Select(aid []byte, p1, p2 byte) apdu.Command {
	c := apdu.Command{CLA: 0x00, INS: 0xA4, P1: p1, P2: p2, Data: aid}
	if p2&0x0C != 0x0C {
		c.Le = apdu.Le(0)
	}
	return c
}

// GetData builds a GET DATA (00 CA) command for a 2-byte tag.
func GetData(tag uint16) apdu.Command {
	return apdu.Command{
		CLA: 0x00, INS: 0xCA,
		P1: byte(tag >> 8), P2: byte(tag),
		Le: apdu.Le(0),
	}
}

// PutData builds a PUT DATA (00 DA) command for a 2-byte tag.
func PutData(tag uint16, data []byte) apdu.Command {
	return apdu.Command{
		CLA: 0x00, INS: 0xDA,
		P1: byte(tag >> 8), P2: byte(tag),
		Data: data,
	}
}

// ReadBinary builds a READ BINARY (00 B0) command. When sfi is non-nil,
// P1 = 0x80 | (sfi & 0x1F) and P2 holds the low 8 bits of offset only
// (SFI-relative addressing). Otherwise P1/P2 encode a full 15-bit offset.
func ReadBinary(sfi *byte, offset uint16, le int) apdu.Command {
	p1, p2 := offsetBytes(sfi, offset)
	return apdu.Command{CLA: 0x00, INS: 0xB0, P1: p1, P2: p2, Le: apdu.Le(le)}
}

// UpdateBinary builds an UPDATE BINARY (00 D6) command with the same
// offset-addressing rules as ReadBinary.
func UpdateBinary(sfi *byte, offset uint16, data []byte) apdu.Command {
	p1, p2 := offsetBytes(sfi, offset)
	return apdu.Command{CLA: 0x00, INS: 0xD6, P1: p1, P2: p2, Data: data}
}

func offsetBytes(sfi *byte, offset uint16) (byte, byte) {
	if sfi != nil {
		return 0x80 | (*sfi & 0x1F), byte(offset)
	}
	return byte(offset>>8) & 0x7F, byte(offset)
}
