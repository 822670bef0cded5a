// Package capfile reads GlobalPlatform CAP (zip-packaged) and IJC (raw)
// executable load files, extracting the package and applet AIDs needed
// for LOAD/INSTALL (§4.12). Grounded on the teacher's ReadCAPLoadFile
// (sim/gp_manage.go) — "read zip, concatenate named components, skip
// missing ones" — but with the GP 2.2 Table 6-2 component order the
// teacher's own version does not follow.
package capfile

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"gpcm/gperr"
)

// componentOrder is the binding concatenation order (GP 2.2 Table 6-2).
// The teacher's Go reader orders Applet after Import and places Export
// before ConstantPool, which does not match the table; this reader
// follows the order below instead.
var componentOrder = []string{
	"Header.cap",
	"Directory.cap",
	"Applet.cap",
	"Import.cap",
	"ConstantPool.cap",
	"Class.cap",
	"Method.cap",
	"StaticField.cap",
	"RefLocation.cap",
	"Descriptor.cap",
	"Debug.cap",
}

// LoadFileInfo is the parsed result of reading a CAP or IJC file (§3).
type LoadFileInfo struct {
	Data       []byte
	PackageAID []byte
	AppletAIDs [][]byte
}

// Component tags within the concatenated metadata stream (§4.12).
const (
	tagHeader = 0x01
	tagApplet = 0x03
)

// ReadCAP reads a CAP archive (a zip file with named `*.cap` component
// entries), concatenates the present components in GP 2.2 Table 6-2
// order, and parses package/applet AIDs from the result. Missing
// components are skipped silently.
func ReadCAP(r io.ReaderAt, size int64) (LoadFileInfo, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return LoadFileInfo{}, &gperr.MalformedCap{Reason: fmt.Sprintf("not a valid zip: %v", err)}
	}

	found := make(map[string][]byte, len(componentOrder))
	for _, f := range zr.File {
		name := componentSuffix(f.Name)
		if name == "" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return LoadFileInfo{}, &gperr.MalformedCap{Reason: fmt.Sprintf("open %s: %v", f.Name, err)}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return LoadFileInfo{}, &gperr.MalformedCap{Reason: fmt.Sprintf("read %s: %v", f.Name, err)}
		}
		found[name] = data
	}

	var out []byte
	for _, name := range componentOrder {
		if data, ok := found[name]; ok {
			out = append(out, data...)
		}
	}
	if len(out) == 0 {
		return LoadFileInfo{}, &gperr.MalformedCap{Reason: "no recognized CAP component files found"}
	}
	return parseLoadFile(out)
}

// componentSuffix returns the known component filename (e.g.
// "Header.cap") if name ends with one of componentOrder's entries,
// regardless of the directory prefix zip tools add, or "" otherwise.
func componentSuffix(name string) string {
	for _, want := range componentOrder {
		if name == want || (len(name) > len(want) && name[len(name)-len(want)-1] == '/' && name[len(name)-len(want):] == want) {
			return want
		}
	}
	return ""
}

// ReadIJC reads a raw IJC load file: the bytes are the concatenated
// component stream directly, no zip wrapper.
func ReadIJC(data []byte) (LoadFileInfo, error) {
	return parseLoadFile(data)
}

// parseLoadFile walks the tag(1) || size(2 be) || data(size) metadata
// blocks in the concatenated component stream, extracting the package
// AID from Header (tag 0x01) and applet AIDs from Applet (tag 0x03)
// (§4.12).
func parseLoadFile(data []byte) (LoadFileInfo, error) {
	info := LoadFileInfo{Data: data}

	offset := 0
	for offset < len(data) {
		if offset+3 > len(data) {
			return LoadFileInfo{}, &gperr.MalformedCap{Reason: "truncated component header"}
		}
		tag := data[offset]
		size := int(data[offset+1])<<8 | int(data[offset+2])
		offset += 3
		if offset+size > len(data) {
			return LoadFileInfo{}, &gperr.MalformedCap{Reason: fmt.Sprintf("component 0x%02X declares %d bytes, only %d remain", tag, size, len(data)-offset)}
		}
		body := data[offset : offset+size]
		offset += size

		switch tag {
		case tagHeader:
			aid, err := parseHeaderAID(body)
			if err != nil {
				return LoadFileInfo{}, err
			}
			info.PackageAID = aid
		case tagApplet:
			aids, err := parseAppletAIDs(body)
			if err != nil {
				return LoadFileInfo{}, err
			}
			info.AppletAIDs = aids
		}
	}
	return info, nil
}

// parseHeaderAID extracts package_aid from a Header component body: 3
// bytes (minor/major/flags), 2 bytes (package minor/major), then
// aid_len(1) || aid.
func parseHeaderAID(body []byte) ([]byte, error) {
	if len(body) < 6 {
		return nil, &gperr.MalformedCap{Reason: "Header component too short"}
	}
	aidLen := int(body[5])
	if 6+aidLen > len(body) {
		return nil, &gperr.MalformedCap{Reason: "Header package AID exceeds component bounds"}
	}
	return body[6 : 6+aidLen], nil
}

// parseAppletAIDs extracts applet AIDs from an Applet component body:
// count(1), then count repetitions of aid_len(1) || aid(n) ||
// install_method_offset(2).
func parseAppletAIDs(body []byte) ([][]byte, error) {
	if len(body) < 1 {
		return nil, &gperr.MalformedCap{Reason: "Applet component too short"}
	}
	count := int(body[0])
	offset := 1
	aids := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if offset+1 > len(body) {
			return nil, &gperr.MalformedCap{Reason: "Applet component truncated at entry length"}
		}
		aidLen := int(body[offset])
		offset++
		if offset+aidLen+2 > len(body) {
			return nil, &gperr.MalformedCap{Reason: "Applet component entry exceeds component bounds"}
		}
		aids = append(aids, body[offset:offset+aidLen])
		offset += aidLen + 2 // skip install_method_offset
	}
	return aids, nil
}

// ReadCAPBytes is a convenience wrapper over ReadCAP for a zip archive
// held fully in memory.
func ReadCAPBytes(zipData []byte) (LoadFileInfo, error) {
	return ReadCAP(bytes.NewReader(zipData), int64(len(zipData)))
}
