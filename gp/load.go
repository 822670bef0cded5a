package gp

import (
	"context"

	"gpcm/gperr"
)

// LoadResult reports how a LOAD sequence progressed (§6: "LOAD carries
// blocks_sent").
type LoadResult struct {
	BlocksSent int
}

// LoadFile runs INSTALL [for load] followed by the LOAD block sequence
// (§4.4, §4.10). blockSize defaults to 239 when zero or negative. ctx is
// checked between blocks; a cancellation tears the channel down and
// returns gperr.Cancelled (§5).
func (s *Session) LoadFile(ctx context.Context, loadFileAID, sdAID, data []byte, blockSize int) (LoadResult, error) {
	if blockSize <= 0 {
		blockSize = 239
	}

	installData := make([]byte, 0, 8+len(loadFileAID)+len(sdAID))
	installData = append(installData, byte(len(loadFileAID)))
	installData = append(installData, loadFileAID...)
	installData = append(installData, byte(len(sdAID)))
	installData = append(installData, sdAID...)
	installData = append(installData, 0x00, 0x00, 0x00) // hash, params, token

	resp, err := s.Send(cmdInstall(installP1ForLoad, installData))
	if err != nil {
		return LoadResult{}, err
	}
	if err := requireSuccess("INSTALL [for load]", resp); err != nil {
		return LoadResult{}, err
	}

	blocksSent := 0
	for offset := 0; offset < len(data) || blocksSent == 0; {
		select {
		case <-ctx.Done():
			s.poison()
			return LoadResult{BlocksSent: blocksSent}, &gperr.Cancelled{Op: "LOAD"}
		default:
		}

		end := offset + blockSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		last := end >= len(data)

		p1 := byte(0x00)
		if last {
			p1 = 0x80
		}

		resp, err := s.Send(cmdLoad(p1, byte(blocksSent), chunk))
		if err != nil {
			return LoadResult{BlocksSent: blocksSent}, err
		}
		if err := requireSuccess("LOAD", resp); err != nil {
			return LoadResult{BlocksSent: blocksSent}, err
		}
		blocksSent++
		offset = end
		if last {
			break
		}
	}
	return LoadResult{BlocksSent: blocksSent}, nil
}

// InstallMessage carries the parameters for INSTALL [for install
// [and make selectable]] (§4.10).
type InstallMessage struct {
	PackageAID     []byte
	ModuleAID      []byte
	InstanceAID    []byte // defaults to ModuleAID if empty
	Privileges     []byte
	Params         []byte
	MakeSelectable bool
}

// Install issues INSTALL [for install] per InstallMessage (§4.10).
func (s *Session) Install(m InstallMessage) error {
	instanceAID := m.InstanceAID
	if len(instanceAID) == 0 {
		instanceAID = m.ModuleAID
	}

	data := make([]byte, 0, 16+len(m.PackageAID)+len(m.ModuleAID)+len(instanceAID)+len(m.Privileges)+len(m.Params))
	data = append(data, byte(len(m.PackageAID)))
	data = append(data, m.PackageAID...)
	data = append(data, byte(len(m.ModuleAID)))
	data = append(data, m.ModuleAID...)
	data = append(data, byte(len(instanceAID)))
	data = append(data, instanceAID...)
	data = append(data, byte(len(m.Privileges)))
	data = append(data, m.Privileges...)
	data = append(data, byte(len(m.Params)))
	data = append(data, m.Params...)
	data = append(data, 0x00) // token

	p1 := byte(installP1ForInstall)
	if m.MakeSelectable {
		p1 = installP1ForInstallAndMake
	}

	resp, err := s.Send(cmdInstall(p1, data))
	if err != nil {
		return err
	}
	return requireSuccess("INSTALL [for install]", resp)
}
