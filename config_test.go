package blesm

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rigado/blesm/pdu"
)

func writeConfig(t *testing.T, s string) string {
	dir, err := ioutil.TempDir("", "blesm")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "smp.yaml")
	if err := ioutil.WriteFile(path, []byte(s), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
io_cap: 4
mitm: true
keypress: true
min_key_size: 10
our_key_dist: 7
timeout: 10s
log:
  level: debug
  file: /tmp/smp.log
store:
  path: /var/lib/smp/bonds.json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	exp := DefaultConfig()
	exp.IOCap = pdu.IOCapKeyboardDisplay
	exp.MITM = true
	exp.Keypress = true
	exp.MinKeySize = 10
	exp.OurKeyDist = pdu.KeyDistEnc | pdu.KeyDistID | pdu.KeyDistSign
	exp.Timeout = 10 * time.Second
	exp.Log.Level = "debug"
	exp.Log.File = "/tmp/smp.log"
	exp.Store.Path = "/var/lib/smp/bonds.json"
	if cfg != exp {
		t.Fatalf("config\ngot %+v\nexp %+v", cfg, exp)
	}

	if a := cfg.AuthReq(); a != pdu.AuthReqBond|pdu.AuthReqMITM|pdu.AuthReqSC|pdu.AuthReqKeypress {
		t.Fatalf("auth req 0x%02x", a)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"io cap", "io_cap: 5"},
		{"max key size", "max_key_size: 17"},
		{"min above max", "min_key_size: 16\nmax_key_size: 12"},
		{"link key dist", "our_key_dist: 8"},
		{"reserved key dist", "their_key_dist: 16"},
		{"sc only", "sc: false\nsc_only: true"},
		{"zero timeout", "timeout: 0s"},
		{"negative timeout", "timeout: -1s"},
		{"syntax", "io_cap: [1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(os.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.AuthReq() != pdu.AuthReqBond|pdu.AuthReqSC {
		t.Fatalf("auth req 0x%02x", cfg.AuthReq())
	}
	if cfg.OOBFlag() != pdu.OOBNotPresent {
		t.Fatal("oob advertised by default")
	}
	cfg.OOB = true
	if cfg.OOBFlag() != pdu.OOBPresent {
		t.Fatal("oob not advertised")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected an error for a bad level")
	}

	dir, err := ioutil.TempDir("", "blesm")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "smp.log")
	l, err := NewLogger(LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	l.ChildLogger(map[string]interface{}{"mod": "test"}).Debugf("hello %d", 1)

	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 {
		t.Fatal("nothing logged")
	}
}
