package gp

import (
	"gpcm/gperr"
	"gpcm/tlv"
)

// GET DATA tags this module knows how to interpret (§4.13).
const (
	TagCPLC    = 0x9F7F
	TagKeyInfo = 0x00E0
)

// CPLC is the 42-byte Card Production Life Cycle record (§3, §4.13), a
// flat sequence of fixed-offset fields.
type CPLC struct {
	ICFabricator               []byte
	ICType                     []byte
	OSID                       []byte
	OSReleaseDate              []byte
	OSReleaseLevel             []byte
	ICFabricationDate          []byte
	ICSerialNumber             []byte
	ICBatchID                  []byte
	ICModuleFabricator         []byte
	ICModulePackagingDate      []byte
	ICCManufacturer            []byte
	ICEmbeddingDate            []byte
	ICPrePersonalizer          []byte
	ICPrePersonalizationDate   []byte
	ICPrePersonalizationEquipID []byte
	ICPersonalizer             []byte
	ICPersonalizationDate      []byte
	ICPersonalizationEquipID   []byte
}

// cplcFieldLen is the byte width of each of the 18 CPLC fields in wire
// order, summing to 42.
var cplcFieldLen = []int{2, 2, 2, 2, 2, 2, 4, 2, 2, 2, 2, 2, 2, 2, 4, 2, 2, 4}

// ParseCPLC decodes a 42-byte CPLC record, stripping a surrounding
// 0x9F7F TLV wrapper when present (§4.13).
func ParseCPLC(data []byte) (CPLC, error) {
	if len(data) > 42 {
		nodes, err := tlv.Parse(data)
		if err == nil && len(nodes) == 1 && nodes[0].Tag == TagCPLC {
			data = nodes[0].Value
		}
	}
	if len(data) != 42 {
		return CPLC{}, &gperr.MalformedApdu{Reason: "CPLC record is not 42 bytes"}
	}

	fields := make([][]byte, len(cplcFieldLen))
	offset := 0
	for i, n := range cplcFieldLen {
		fields[i] = data[offset : offset+n]
		offset += n
	}

	return CPLC{
		ICFabricator:                fields[0],
		ICType:                      fields[1],
		OSID:                        fields[2],
		OSReleaseDate:               fields[3],
		OSReleaseLevel:              fields[4],
		ICFabricationDate:           fields[5],
		ICSerialNumber:              fields[6],
		ICBatchID:                   fields[7],
		ICModuleFabricator:          fields[8],
		ICModulePackagingDate:       fields[9],
		ICCManufacturer:             fields[10],
		ICEmbeddingDate:             fields[11],
		ICPrePersonalizer:           fields[12],
		ICPrePersonalizationDate:    fields[13],
		ICPrePersonalizationEquipID: fields[14],
		ICPersonalizer:              fields[15],
		ICPersonalizationDate:       fields[16],
		ICPersonalizationEquipID:    fields[17],
	}, nil
}

// GetCPLC issues GET DATA for tag 0x9F7F and parses the result.
func (s *Session) GetCPLC() (CPLC, error) {
	data, err := s.GetData(TagCPLC)
	if err != nil {
		return CPLC{}, err
	}
	return ParseCPLC(data)
}

// KeyInfoEntry is one key set as reported by GET DATA 00 E0 (§3).
type KeyInfoEntry struct {
	KeyID      byte
	KeyVersion byte
	Components []KeyInfoComponent
}

// KeyInfoComponent is one (type, length) pair within a KeyInfoEntry.
type KeyInfoComponent struct {
	KeyType   byte
	KeyLength byte
}

// ParseKeyInfo walks the BER-TLV tree from GET DATA 00 E0, handling both
// shapes GP 2.3 allows: bare 0xC0 nodes at the top level, or 0xC0
// children under a 0xE0 template (§4.13).
func ParseKeyInfo(data []byte) ([]KeyInfoEntry, error) {
	nodes, err := tlv.Parse(data)
	if err != nil {
		return nil, err
	}

	var c0Nodes []tlv.Node
	for _, n := range nodes {
		switch n.Tag {
		case 0xC0:
			c0Nodes = append(c0Nodes, n)
		case 0xE0:
			for _, child := range n.Children {
				if child.Tag == 0xC0 {
					c0Nodes = append(c0Nodes, child)
				}
			}
		}
	}

	entries := make([]KeyInfoEntry, 0, len(c0Nodes))
	for _, n := range c0Nodes {
		entries = append(entries, parseKeyInfoEntry(n.Value))
	}
	return entries, nil
}

func parseKeyInfoEntry(value []byte) KeyInfoEntry {
	var e KeyInfoEntry
	if len(value) < 2 {
		return e
	}
	e.KeyID = value[0]
	e.KeyVersion = value[1]
	for i := 2; i+1 < len(value); i += 2 {
		e.Components = append(e.Components, KeyInfoComponent{KeyType: value[i], KeyLength: value[i+1]})
	}
	return e
}

// GetKeyInfo issues GET DATA for tag 0x00E0 and parses the result.
func (s *Session) GetKeyInfo() ([]KeyInfoEntry, error) {
	data, err := s.GetData(TagKeyInfo)
	if err != nil {
		return nil, err
	}
	return ParseKeyInfo(data)
}
