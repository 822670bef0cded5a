package gp

import (
	"gpcm/gperr"
	"gpcm/tlv"
)

// ELF upgrade actions (§4.11).
const (
	UpgradeActionStart    = 0x01
	UpgradeActionResume   = 0x02
	UpgradeActionRecovery = 0x03
	UpgradeActionAbort    = 0x04
	UpgradeActionStatus   = 0x08
)

// ELF upgrade session states (§4.11).
const (
	StateUnknown              = 0x00 // not a protocol value; see ParseUpgradeResponse
	StateNoSession            = 0x00
	StateCompleted            = 0x01
	StateWaitingELF           = 0x02
	StateWaitingRestore       = 0x03
	StateWaitingRestoreFailed = 0x04
	StateInterruptedSaving      = 0x10
	StateInterruptedCleanup     = 0x20
	StateInterruptedDelete      = 0x30
	StateInterruptedInstall     = 0x40
	StateInterruptedRestore     = 0x50
	StateInterruptedConsolidate = 0x60
)

func isInterrupted(state byte) bool {
	switch state {
	case StateInterruptedSaving, StateInterruptedCleanup, StateInterruptedDelete,
		StateInterruptedInstall, StateInterruptedRestore, StateInterruptedConsolidate:
		return true
	}
	return false
}

// UpgradeSession drives the ELF upgrade state machine (§4.11). It
// rejects actions illegal from the current state before ever building
// an APDU — the same explicit-state-struct style the scp package uses
// for its channel state.
type UpgradeSession struct {
	session *Session
	state   byte
}

// NewUpgradeSession wraps an authenticated Session for ELF upgrade
// operations. The session starts in StateNoSession; call Drive with
// UpgradeActionStatus to resynchronize with the card's actual state.
func NewUpgradeSession(s *Session) *UpgradeSession {
	return &UpgradeSession{session: s, state: StateNoSession}
}

// State returns the orchestrator's last-known session state.
func (u *UpgradeSession) State() byte { return u.state }

// UpgradeResult is returned by Drive.
type UpgradeResult struct {
	State byte
	ElfAID []byte
}

// Drive issues one ELF upgrade action and advances the orchestrator's
// tracked state (§4.11). aid and options are only meaningful for
// UpgradeActionStart.
func (u *UpgradeSession) Drive(action byte, aid []byte, options byte) (UpgradeResult, error) {
	if err := u.validateTransition(action); err != nil {
		return UpgradeResult{State: u.state}, err
	}

	var data []byte
	if action == UpgradeActionStart {
		inner := append([]byte{0x4F, byte(len(aid))}, aid...)
		if options != 0 {
			inner = append(inner, 0x80, 0x01, options)
		}
		data = append([]byte{0xA1, byte(len(inner))}, inner...)
	}

	resp, err := u.session.Send(cmdManageElfUpgrade(action, data))
	if err != nil {
		return UpgradeResult{State: u.state}, err
	}
	if !resp.Success() {
		if resp.SW() == 0x6985 && action == UpgradeActionStart {
			return UpgradeResult{State: u.state}, &gperr.CardStatusError{Op: "MANAGE ELF UPGRADE (start)", SW: resp.SW()}
		}
		return UpgradeResult{State: u.state}, &gperr.CardStatusError{Op: "MANAGE ELF UPGRADE", SW: resp.SW()}
	}

	state, elfAID, err := ParseUpgradeResponse(resp.Data)
	if err != nil {
		return UpgradeResult{State: u.state}, err
	}

	u.state = u.applyAction(action, state)
	return UpgradeResult{State: u.state, ElfAID: elfAID}, nil
}

// validateTransition rejects actions that are never legal from the
// tracked state, before any APDU is built (§4.11's allowed-transitions
// table).
func (u *UpgradeSession) validateTransition(action byte) error {
	switch action {
	case UpgradeActionStatus, UpgradeActionAbort:
		return nil // always legal
	case UpgradeActionStart:
		if u.state != StateNoSession {
			return &gperr.CardStatusError{Op: "MANAGE ELF UPGRADE (start)", SW: 0x6985}
		}
		return nil
	case UpgradeActionResume:
		if u.state == StateWaitingRestore || isInterrupted(u.state) {
			return nil
		}
		return &gperr.UpgradeStuck{State: u.state}
	case UpgradeActionRecovery:
		if u.state == StateWaitingRestoreFailed {
			return nil
		}
		return &gperr.UpgradeStuck{State: u.state}
	default:
		return &gperr.UpgradeStuck{State: u.state}
	}
}

// applyAction folds the card-reported state into the orchestrator's
// view, honoring the transition table even when the card's own
// session-info block is absent (ParseUpgradeResponse's StateUnknown
// fallback, §9).
func (u *UpgradeSession) applyAction(action byte, cardState byte) byte {
	if cardState != StateUnknown {
		return cardState
	}
	switch action {
	case UpgradeActionAbort:
		return StateNoSession
	default:
		return u.state
	}
}

// ParseUpgradeResponse extracts the session state and optional ELF AID
// from a MANAGE ELF UPGRADE response (§4.11): skip the confirmation
// block, then parse the session-info block as an A1 template with 0x90
// (status) and optional 0x4F (AID) children. Returns (0, nil, nil) —
// StateUnknown — when the session-info block is empty or malformed,
// matching the original's tolerant (None, None) behavior (§9).
func ParseUpgradeResponse(data []byte) (byte, []byte, error) {
	if len(data) < 1 {
		return StateUnknown, nil, nil
	}
	confLen := int(data[0])
	if 1+confLen > len(data) {
		return StateUnknown, nil, nil
	}
	rest := data[1+confLen:]
	if len(rest) < 1 {
		return StateUnknown, nil, nil
	}
	sessionLen := int(rest[0])
	if 1+sessionLen > len(rest) {
		return StateUnknown, nil, nil
	}
	sessionInfo := rest[1 : 1+sessionLen]
	if len(sessionInfo) == 0 {
		return StateUnknown, nil, nil
	}

	nodes, err := tlv.Parse(sessionInfo)
	if err != nil || len(nodes) == 0 {
		return StateUnknown, nil, nil
	}
	template := nodes[0]
	if template.Tag != 0xA1 {
		return StateUnknown, nil, nil
	}

	var state byte
	var elfAID []byte
	if status := template.Find(0x90); status != nil && len(status.Value) > 0 {
		state = status.Value[0]
	} else {
		return StateUnknown, nil, nil
	}
	if aidNode := template.Find(0x4F); aidNode != nil {
		elfAID = aidNode.Value
	}
	return state, elfAID, nil
}
