// Command gpcm is a thin front end over package gp: it reads keys, an
// AID, and an operation name from flags, runs exactly one operation
// against a Transport, and prints the result. It is deliberately not a
// scenario scripting language (see sim_reader's cobra CLI for that
// shape, out of scope here) — one flag set, one operation, one result.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"gpcm/gp"
	"gpcm/scp"
)

// transcriptTransport replays a recorded request/response transcript: a
// text file with alternating "C: <hex>" / "R: <hex>" lines. It exists
// because this module defines only the Transport interface — physical
// reader binding is out of scope (§1) — so the CLI needs *some* way to
// demonstrate an operation end to end without a card present.
type transcriptTransport struct {
	responses [][]byte
	pos       int
}

func loadTranscript(path string) (*transcriptTransport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	t := &transcriptTransport{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "R:") {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSpace(line[2:]))
		if err != nil {
			return nil, fmt.Errorf("bad response hex %q: %w", line, err)
		}
		t.responses = append(t.responses, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *transcriptTransport) Transmit(raw []byte) ([]byte, error) {
	if t.pos >= len(t.responses) {
		return nil, fmt.Errorf("transcript exhausted after %d exchanges", t.pos)
	}
	resp := t.responses[t.pos]
	t.pos++
	return resp, nil
}

func main() {
	op := flag.String("op", "", "operation to run: auth, status, cplc, keyinfo")
	transcript := flag.String("transcript", "", "path to a recorded request/response transcript (see sim_reader's APDU script format)")
	encKey := flag.String("enc", "", "static ENC key, hex")
	macKey := flag.String("mac", "", "static MAC key, hex")
	dekKey := flag.String("dek", "", "static DEK key, hex")
	kvn := flag.Int("kvn", 0, "key version number")
	security := flag.String("level", "mac", "security level: mac, mac+enc")
	sdAID := flag.String("sd-aid", "", "security domain AID to select before authenticating, hex")
	scope := flag.String("scope", "isd", "GET STATUS scope: isd, apps, elf")
	flag.Parse()

	if *op == "" || *transcript == "" {
		fmt.Fprintln(os.Stderr, "usage: gpcm -op <auth|status|cplc|keyinfo> -transcript <path> [-enc ... -mac ... -dek ... -kvn N -level mac|mac+enc] [-sd-aid AID] [-scope isd|apps|elf]")
		os.Exit(2)
	}

	transport, err := loadTranscript(*transcript)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	session := gp.NewSession(transport)

	if err := run(session, *op, *encKey, *macKey, *dekKey, byte(*kvn), *security, *sdAID, *scope); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(session *gp.Session, op, encHex, macHex, dekHex string, kvn byte, securityStr, sdAIDHex, scopeStr string) error {
	if sdAIDHex != "" {
		aid, err := gp.ParseAIDHex(sdAIDHex)
		if err != nil {
			return err
		}
		if err := session.SelectSecurityDomain(aid); err != nil {
			return err
		}
	}

	switch op {
	case "auth":
		cfg, err := buildConfig(encHex, macHex, dekHex, kvn, securityStr)
		if err != nil {
			return err
		}
		result, err := gp.Authenticate(session, cfg.StaticKeys, cfg.KVN, cfg.Security)
		if err != nil {
			return err
		}
		fmt.Printf("authenticated: key_info=%X i_param=%02X key_div_data=%X\n", result.KeyInfo, result.IParam, result.KeyDivData)
		return nil

	case "status":
		scope, err := parseScope(scopeStr)
		if err != nil {
			return err
		}
		entries, err := session.GetStatus(scope)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%X  lifecycle=%02X  privileges=%X\n", e.AID, e.Lifecycle, e.Privileges)
		}
		return nil

	case "cplc":
		cplc, err := session.GetCPLC()
		if err != nil {
			return err
		}
		fmt.Printf("IC fabricator=%X  IC type=%X  serial=%X\n", cplc.ICFabricator, cplc.ICType, cplc.ICSerialNumber)
		return nil

	case "keyinfo":
		entries, err := session.GetKeyInfo()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("key_id=%02X key_version=%02X components=%+v\n", e.KeyID, e.KeyVersion, e.Components)
		}
		return nil

	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}

func buildConfig(encHex, macHex, dekHex string, kvn byte, securityStr string) (gp.Config, error) {
	enc, err := gp.ParseHexBytes(encHex)
	if err != nil {
		return gp.Config{}, fmt.Errorf("enc key: %w", err)
	}
	mac, err := gp.ParseHexBytes(macHex)
	if err != nil {
		return gp.Config{}, fmt.Errorf("mac key: %w", err)
	}
	dek, err := gp.ParseHexBytes(dekHex)
	if err != nil {
		return gp.Config{}, fmt.Errorf("dek key: %w", err)
	}
	security, err := gp.ParseSecurityLevel(securityStr)
	if err != nil {
		return gp.Config{}, err
	}
	return gp.Config{
		KVN:        kvn,
		Security:   security,
		StaticKeys: scp.StaticKeys{Enc: enc, Mac: mac, Dek: dek},
	}, nil
}

func parseScope(s string) (byte, error) {
	switch strings.ToLower(s) {
	case "isd":
		return gp.ScopeISD, nil
	case "apps":
		return gp.ScopeApps, nil
	case "elf":
		return gp.ScopeELF, nil
	default:
		return 0, fmt.Errorf("unknown scope %q (use isd, apps, elf)", s)
	}
}
