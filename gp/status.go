package gp

import "gpcm/tlv"

// AppEntry is one row of a GET STATUS response (§3): an ISD, applet
// instance, executable load file, or module, depending on which scope
// the request targeted.
type AppEntry struct {
	AID                []byte
	Lifecycle          byte
	Privileges         []byte
	ExecutableLoadFile []byte
	ExecutableModules  [][]byte
	Version            []byte
	AssociatedSD       []byte
}

// GetStatus issues GET STATUS for one scope, accumulating continuation
// responses (SW 0x6310) until the card signals completion (§4.4). The
// payloads of every 0x6310 and 0x9000 response are concatenated and
// parsed as one BER-TLV stream, so an entry split across two responses
// is kept. Any other SW ends the call with a CardStatusError, returning
// the entries parsed from the payloads received before it.
func (s *Session) GetStatus(scope byte) ([]AppEntry, error) {
	var payload []byte
	continuing := false
	for {
		resp, err := s.Send(cmdGetStatus(scope, continuing))
		if err != nil {
			return parseStatusEntries(payload), err
		}
		sw := resp.SW()
		if sw != 0x9000 && sw != 0x6310 {
			return parseStatusEntries(payload), requireSuccess("GET STATUS", resp)
		}
		payload = append(payload, resp.Data...)
		if sw != 0x6310 {
			return parseStatusEntries(payload), nil
		}
		continuing = true
	}
}

// parseStatusEntries walks the BER-TLV sequence a GET STATUS response
// carries: a flat run of 0xE3 application-information templates, each
// holding a 0x4F AID, 0x9F70 lifecycle byte, 0xC5 privileges, and
// optionally 0xC4 (associated executable load file AID), 0x84
// (associated module AID, repeatable), and 0xCC (associated security
// domain AID).
func parseStatusEntries(data []byte) []AppEntry {
	nodes, err := tlv.Parse(data)
	if err != nil {
		return nil
	}
	var entries []AppEntry
	for _, n := range nodes {
		if n.Tag != 0xE3 {
			continue
		}
		entries = append(entries, parseStatusEntry(n))
	}
	return entries
}

func parseStatusEntry(n tlv.Node) AppEntry {
	var e AppEntry
	if aid := n.Find(0x4F); aid != nil {
		e.AID = aid.Value
	}
	if lc := n.Find(0x9F70); lc != nil && len(lc.Value) > 0 {
		e.Lifecycle = lc.Value[0]
	}
	if priv := n.Find(0xC5); priv != nil {
		e.Privileges = priv.Value
	}
	if elf := n.Find(0xC4); elf != nil {
		e.ExecutableLoadFile = elf.Value
	}
	if sd := n.Find(0xCC); sd != nil {
		e.AssociatedSD = sd.Value
	}
	if ver := n.Find(0xCE); ver != nil {
		e.Version = ver.Value
	}
	for _, c := range n.Children {
		if c.Tag == 0x84 {
			e.ExecutableModules = append(e.ExecutableModules, c.Value)
		}
	}
	return e
}

// Delete removes an applet instance, package, or ELF by AID (§4.4).
// relatedObjects, when true, sets the "delete related objects" P2 bit.
func (s *Session) Delete(aid []byte, relatedObjects bool) error {
	resp, err := s.Send(cmdDelete(aid, relatedObjects))
	if err != nil {
		return err
	}
	return requireSuccess("DELETE", resp)
}

// DeleteKey removes all keys of the given key version number.
func (s *Session) DeleteKey(kvn byte) error {
	resp, err := s.Send(cmdDeleteKey(kvn))
	if err != nil {
		return err
	}
	return requireSuccess("DELETE KEY", resp)
}

// SetStatus sets the lifecycle state of the ISD, an application, or a
// package/ELF (§4.4).
func (s *Session) SetStatus(scope, state byte, aid []byte) error {
	resp, err := s.Send(cmdSetStatus(scope, state, aid))
	if err != nil {
		return err
	}
	return requireSuccess("SET STATUS", resp)
}
