package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alan-christopher/qkd/bb84"
	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/charmbracelet/log"
	"github.com/go-test/deep"
)

func TestLoadConfigDefaults(t *testing.T) {
	got, err := loadConfig(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := config{
		Variant:    bb84.VariantNoEavesdropper,
		Reconciler: "block-parity",
		Message:    bb84.DefaultMessage,
		Channel:    "local",
		Addr:       "localhost:8484",
		MaxFrame:   64 << 10,
		Shots:      photon.DefaultShots,
		Timeout:    30 * time.Second,
		LogLevel:   "info",
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bb84.yaml")
	if err := os.WriteFile(path, []byte("variant: passive-eve\nqubits: 30\nshots: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BB84_QUBITS", "40")
	t.Setenv("BB84_LOG_LEVEL", "debug")

	got, err := loadConfig(newFlagSet(), []string{"--config", path, "--seed", "9", "--log-level", "warn"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got.Variant != bb84.VariantPassive || got.Shots != 7 {
		t.Errorf("config file ignored: %+v", got)
	}
	if got.Qubits != 40 {
		t.Errorf("qubits == %d, want the environment's 40", got.Qubits)
	}
	if got.Seed != 9 || got.LogLevel != "warn" {
		t.Errorf("flags did not win: seed %d, log level %q", got.Seed, got.LogLevel)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tcs := []struct {
		name string
		args []string
	}{
		{"unknown variant", []string{"--variant", "mitm"}},
		{"unknown reconciler", []string{"--reconciler", "cascade"}},
		{"unknown channel", []string{"--channel", "carrier-pigeon"}},
		{"remote without secret", []string{"--channel", "remote"}},
		{"negative qubits", []string{"--qubits", "-3"}},
		{"noise above one", []string{"--noise", "1.5"}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadConfig(newFlagSet(), tc.args); err == nil {
				t.Errorf("loadConfig(%v) succeeded", tc.args)
			}
		})
	}
}

func TestSessionServe(t *testing.T) {
	src := bb84.SeededSource(3)
	sim := photon.NewSimulated(src.Fork())
	sim.Shots = 4
	var out bytes.Buffer
	s := &session{
		cfg: config{Variant: bb84.VariantNoEavesdropper, Reconciler: "winnow", Qubits: 200, Message: "hi", Timeout: time.Second},
		ch:  sim,
		src: src,
		log: log.New(io.Discard),
		out: &out,
	}
	in := strings.NewReader("encrypt too early\n\nrun\nencrypt later\nbogus\nquit\nrun\n")
	if err := s.serve(in); err != nil {
		t.Fatalf("serve: %v", err)
	}
	got := out.String()
	if n := strings.Count(got, "final_secret_key"); n != 1 {
		t.Errorf("printed %d results, want 1:\n%s", n, got)
	}
	if n := strings.Count(got, "encrypted_message_hex"); n != 2 {
		t.Errorf("printed %d encryptions, want 2:\n%s", n, got)
	}
	if strings.Contains(got, "too early") {
		t.Errorf("encrypted before any experiment:\n%s", got)
	}
	if !strings.Contains(got, `"later"`) {
		t.Errorf("follow-up encryption missing:\n%s", got)
	}
}

func newTestSession(cfg config, seed int64) (*session, *photon.Simulated, *bytes.Buffer) {
	src := bb84.SeededSource(seed)
	sim := photon.NewSimulated(src.Fork())
	sim.Shots = 4
	out := new(bytes.Buffer)
	s := &session{cfg: cfg, ch: sim, src: src, log: log.New(io.Discard), out: out}
	return s, sim, out
}

func TestSessionOpen(t *testing.T) {
	s, _, out := newTestSession(config{Variant: bb84.VariantNoEavesdropper, Reconciler: "block-parity", Qubits: 200, Message: "hi", Timeout: time.Second}, 5)
	if err := s.serve(strings.NewReader("open 00\nrun\n")); err != nil {
		t.Fatalf("serve: %v", err)
	}
	res := s.cache.Last()
	if res == nil || res.SealedHex == "" {
		t.Fatalf("run left no sealed message: %+v", res)
	}

	out.Reset()
	in := "open " + res.SealedHex + "\nopen deadbeef\nopen not-hex\nquit\n"
	if err := s.serve(strings.NewReader(in)); err != nil {
		t.Fatalf("serve: %v", err)
	}
	got := out.String()
	if n := strings.Count(got, "opened_message"); n != 1 {
		t.Errorf("opened %d messages, want 1:\n%s", n, got)
	}
	if !strings.Contains(got, `"hi"`) {
		t.Errorf("opened message missing:\n%s", got)
	}
}

func TestSessionNoiseFollowsRun(t *testing.T) {
	s, sim, _ := newTestSession(config{Variant: bb84.VariantNoEavesdropper, Reconciler: "block-parity", Message: "hi", Noise: 0.1, Timeout: time.Second}, 6)
	for _, tc := range []struct {
		v      bb84.Variant
		qubits int
	}{
		{bb84.VariantSimple, 10},
		{bb84.VariantNoEavesdropper, bb84.DefaultQubits},
		{bb84.VariantSimple, 10},
	} {
		if err := s.run(tc.v, "hi"); err != nil {
			t.Fatalf("run(%s): %v", tc.v, err)
		}
		want := int(float64(tc.qubits)*0.1 + 0.5)
		if sim.Errors.Size() != tc.qubits || bitmap.CountOnes(sim.Errors) != want {
			t.Errorf("after %s, noise mask %v has %d bits set, want %d of %d", tc.v, sim.Errors, bitmap.CountOnes(sim.Errors), want, tc.qubits)
		}
		if n := s.cache.Last().SenderBits.Size(); n != tc.qubits {
			t.Errorf("%s ran %d qubits, want %d", tc.v, n, tc.qubits)
		}
	}
}
