package gp

import (
	"crypto/rand"
	"fmt"

	"gpcm/gperr"
	"gpcm/scp"
)

// AuthOk is the successful result of Authenticate (§4.8 step 7).
type AuthOk struct {
	KeyDivData []byte
	KeyInfo    []byte
	IParam     byte
}

// Authenticate runs the full handshake: INITIALIZE UPDATE, SCP variant
// auto-detection, session-key derivation, card-cryptogram verification,
// channel installation, and EXTERNAL AUTHENTICATE (§4.8). On any failure
// the session is left with no channel installed.
func Authenticate(s *Session, static scp.StaticKeys, kvn byte, securityLevel byte) (*AuthOk, error) {
	hostChallenge := make([]byte, 8)
	if _, err := rand.Read(hostChallenge); err != nil {
		return nil, fmt.Errorf("generating host challenge: %w", err)
	}

	resp, err := s.Send(cmdInitializeUpdate(kvn, hostChallenge))
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &gperr.AuthFailed{SW: resp.SW(), Step: "INITIALIZE UPDATE"}
	}
	if len(resp.Data) < 12 {
		return nil, &gperr.MalformedApdu{Reason: "truncated INITIALIZE UPDATE response"}
	}

	var (
		keyInfo        []byte
		iParam         byte
		hostCryptogram []byte
		channel        scp.Channel
	)

	switch resp.Data[11] {
	case 0x02:
		result, err := scp.EstablishSCP02(resp.Data, static, hostChallenge, securityLevel, scp.DefaultSCP02IParam)
		if err != nil {
			return nil, err
		}
		keyInfo = result.KeyInfo
		hostCryptogram = result.HostCryptogram
		channel = result.Channel
	case 0x03:
		result, err := scp.EstablishSCP03(resp.Data, static, hostChallenge, securityLevel)
		if err != nil {
			return nil, err
		}
		keyInfo = result.KeyInfo
		iParam = result.IParam
		hostCryptogram = result.HostCryptogram
		channel = result.Channel
	default:
		return nil, &gperr.UnsupportedScp{ScpID: resp.Data[11]}
	}

	s.channel = channel

	authResp, err := s.Send(cmdExternalAuthenticate(securityLevel, hostCryptogram))
	if err != nil {
		s.poison()
		return nil, err
	}
	if !authResp.Success() {
		sw := authResp.SW()
		s.poison()
		return nil, &gperr.AuthFailed{SW: sw, Step: "EXTERNAL AUTHENTICATE"}
	}

	return &AuthOk{
		KeyDivData: append([]byte{}, resp.Data[:10]...),
		KeyInfo:    keyInfo,
		IParam:     iParam,
	}, nil
}
