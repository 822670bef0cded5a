package capfile

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildCAP(t *testing.T) []byte {
	t.Helper()
	packageAID := []byte{0xA0, 0x00, 0x00, 0x00, 0x62, 0x01, 0x01}

	header := []byte{0x01, 0x00, 0x00} // minor, major, flags
	header = append(header, 0x01, 0x00) // pkg minor, pkg major
	header = append(header, byte(len(packageAID)))
	header = append(header, packageAID...)
	headerComponent := append([]byte{0x01, 0x00, byte(len(header))}, header...)

	applet := []byte{0x01} // one applet
	applet = append(applet, byte(len(packageAID)))
	applet = append(applet, packageAID...)
	applet = append(applet, 0x00, 0x00) // install method offset
	appletComponent := append([]byte{0x03, 0x00, byte(len(applet))}, applet...)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range map[string][]byte{
		"Header.cap": headerComponent,
		"Applet.cap": appletComponent,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip Write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	return buf.Bytes()
}

func TestReadCAPExtractsPackageAID(t *testing.T) {
	zipData := buildCAP(t)
	info, err := ReadCAPBytes(zipData)
	if err != nil {
		t.Fatalf("ReadCAPBytes: %v", err)
	}
	want := []byte{0xA0, 0x00, 0x00, 0x00, 0x62, 0x01, 0x01}
	if !bytes.Equal(info.PackageAID, want) {
		t.Fatalf("PackageAID = % X, want % X", info.PackageAID, want)
	}
	if len(info.AppletAIDs) != 1 || !bytes.Equal(info.AppletAIDs[0], want) {
		t.Fatalf("AppletAIDs = %v, want one entry %X", info.AppletAIDs, want)
	}
}

func TestReadCAPMissingComponentsSkipped(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("Header.cap")
	if err != nil {
		t.Fatalf("zip Create: %v", err)
	}
	header := []byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x02, 0xA0, 0x01}
	headerComponent := append([]byte{0x01, 0x00, byte(len(header))}, header...)
	if _, err := w.Write(headerComponent); err != nil {
		t.Fatalf("zip Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}

	info, err := ReadCAPBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadCAPBytes: %v", err)
	}
	if !bytes.Equal(info.PackageAID, []byte{0xA0, 0x01}) {
		t.Fatalf("PackageAID = % X", info.PackageAID)
	}
	if info.AppletAIDs != nil {
		t.Fatalf("expected no applet AIDs, got %v", info.AppletAIDs)
	}
}

func TestReadCAPRejectsEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	if _, err := ReadCAPBytes(buf.Bytes()); err == nil {
		t.Fatal("expected MalformedCap for an archive with no recognized components")
	}
}

func TestReadIJCTruncatedComponentFails(t *testing.T) {
	if _, err := ReadIJC([]byte{0x01, 0x00, 0x10, 0x01}); err == nil {
		t.Fatal("expected MalformedCap for truncated component")
	}
}

func TestReadIJCPlainConcatenation(t *testing.T) {
	packageAID := []byte{0xA0, 0x00, 0x00, 0x00, 0x62, 0x01, 0x01}
	header := []byte{0x01, 0x00, 0x00, 0x01, 0x00, byte(len(packageAID))}
	header = append(header, packageAID...)
	data := append([]byte{0x01, 0x00, byte(len(header))}, header...)

	info, err := ReadIJC(data)
	if err != nil {
		t.Fatalf("ReadIJC: %v", err)
	}
	if !bytes.Equal(info.PackageAID, packageAID) {
		t.Fatalf("PackageAID = % X, want % X", info.PackageAID, packageAID)
	}
}
