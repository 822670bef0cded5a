package gp

import "gpcm/apdu"

// GP scope bytes for GET STATUS / SET STATUS (§4.4).
const (
	ScopeISD  = 0x80
	ScopeApps = 0x40
	ScopeELF  = 0x20
)

// INSTALL P1 values (§4.4, §4.10).
const (
	installP1ForLoad           = 0x02
	installP1ForInstall        = 0x04
	installP1ForInstallAndMake = 0x0C
)

func cmdGetData(tag uint16) apdu.Command {
	le := 0
	return apdu.Command{CLA: 0x80, INS: 0xCA, P1: byte(tag >> 8), P2: byte(tag), Le: &le}
}

func cmdGetStatus(scope byte, continuing bool) apdu.Command {
	p2 := byte(0x02)
	if continuing {
		p2 |= 0x01
	}
	le := 0
	return apdu.Command{CLA: 0x80, INS: 0xF2, P1: scope, P2: p2, Data: []byte{0x4F, 0x00}, Le: &le}
}

func cmdInitializeUpdate(kvn byte, hostChallenge []byte) apdu.Command {
	le := 0
	return apdu.Command{CLA: 0x80, INS: 0x50, P1: kvn, P2: 0x00, Data: hostChallenge, Le: &le}
}

func cmdExternalAuthenticate(securityLevel byte, hostCryptogram []byte) apdu.Command {
	return apdu.Command{CLA: 0x84, INS: 0x82, P1: securityLevel, P2: 0x00, Data: hostCryptogram}
}

func cmdDeleteKey(kvn byte) apdu.Command {
	return apdu.Command{CLA: 0x80, INS: 0xE4, P1: 0x00, P2: 0x00, Data: []byte{0xD2, 0x01, kvn}}
}

func cmdDelete(aid []byte, relatedObjects bool) apdu.Command {
	p2 := byte(0x00)
	if relatedObjects {
		p2 = 0x80
	}
	data := append([]byte{0x4F, byte(len(aid))}, aid...)
	return apdu.Command{CLA: 0x80, INS: 0xE4, P1: 0x00, P2: p2, Data: data}
}

func cmdSetStatus(scope byte, state byte, aid []byte) apdu.Command {
	data := append([]byte{byte(len(aid))}, aid...)
	return apdu.Command{CLA: 0x80, INS: 0xF0, P1: scope, P2: state, Data: data}
}

func cmdPutKey(oldKVN, keyID byte, data []byte, multiple bool) apdu.Command {
	p2 := keyID
	if multiple {
		p2 |= 0x80
	}
	return apdu.Command{CLA: 0x80, INS: 0xD8, P1: oldKVN, P2: p2, Data: data}
}

func cmdInstall(p1 byte, data []byte) apdu.Command {
	return apdu.Command{CLA: 0x80, INS: 0xE6, P1: p1, P2: 0x00, Data: data}
}

func cmdLoad(p1, blockNum byte, data []byte) apdu.Command {
	return apdu.Command{CLA: 0x80, INS: 0xE8, P1: p1, P2: blockNum, Data: data}
}

func cmdManageElfUpgrade(action byte, data []byte) apdu.Command {
	return apdu.Command{CLA: 0x80, INS: 0xE4, P1: action, P2: 0x00, Data: data}
}

// GetData issues GP GET DATA (80 CA) for the given two-byte tag.
func (s *Session) GetData(tag uint16) ([]byte, error) {
	resp, err := s.Send(cmdGetData(tag))
	if err != nil {
		return nil, err
	}
	if err := requireSuccess("GET DATA", resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
