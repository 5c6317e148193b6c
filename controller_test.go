package daqcore

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newSimControllerOptions(t *testing.T, outputRoot string) *OptionStore {
	v := viper.New()
	v.Set("boards", []map[string]interface{}{
		{"link": 0, "crate": 0, "board_id": 1, "type_tag": "sim", "host": "testhost", "vme_address": 0x1000},
	})
	v.Set("baseline_dac_mode", "fixed")
	v.Set("channel_map.1.0", 0)
	v.Set("processing_threads.testhost", 1)
	v.Set("strax_output_path", outputRoot)
	v.Set("compressor", "none")
	v.Set("number", 7)
	return NewOptionStore(v, "testhost")
}

// TestControllerLifecycleTransitions checks the full lifecycle:
// Idle -> Arming -> Armed -> Running -> Idle within one run.
func TestControllerLifecycleTransitions(t *testing.T) {
	root := t.TempDir()
	opts := newSimControllerOptions(t, root)
	ctrl := NewController(opts)

	if ctrl.Status() != Idle {
		t.Fatalf("initial state = %s, want Idle", ctrl.Status())
	}
	if err := ctrl.Arm("sim", "testhost"); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if ctrl.Status() != Armed {
		t.Fatalf("state after Arm = %s, want Armed", ctrl.Status())
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ctrl.Status() != Running {
		t.Fatalf("state after Start = %s, want Running", ctrl.Status())
	}
	if err := ctrl.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if ctrl.Status() != Idle {
		t.Fatalf("state after End = %s, want Idle", ctrl.Status())
	}
}

func TestControllerArmFailsOnUnconfiguredBoardType(t *testing.T) {
	root := t.TempDir()
	opts := newSimControllerOptions(t, root)
	ctrl := NewController(opts)

	if err := ctrl.Arm("v1724", "nosuchhost"); err == nil {
		t.Fatal("expected arm to fail when no boards are configured for type/host")
	}
	if ctrl.Status() != Idle {
		t.Fatalf("state after failed arm = %s, want Idle", ctrl.Status())
	}
}

func TestRunNameFromOptionsPadsToSixDigits(t *testing.T) {
	v := viper.New()
	v.Set("number", 42)
	o := NewOptionStore(v, "h")
	if got := runNameFromOptions(o); got != "000042" {
		t.Fatalf("runNameFromOptions = %q, want %q", got, "000042")
	}
}

func TestRunNameFromOptionsDefaultsToRun(t *testing.T) {
	v := viper.New()
	o := NewOptionStore(v, "h")
	if got := runNameFromOptions(o); got != "run" {
		t.Fatalf("runNameFromOptions = %q, want %q", got, "run")
	}
}

// TestControllerSetArmDelayShortensArm checks that a shorter SetArmDelay
// is honored by Arm instead of the 2-second default, and that a
// non-positive value is rejected rather than blocking forever. Arm also
// sleeps a fixed 1 second before reaching Armed, so with a 1ms delay it
// takes just over 1s, against 3s with the default.
func TestControllerSetArmDelayShortensArm(t *testing.T) {
	root := t.TempDir()
	opts := newSimControllerOptions(t, root)
	ctrl := NewController(opts)
	ctrl.SetArmDelay(time.Millisecond)
	ctrl.SetArmDelay(0) // no-op, keeps the 1ms override

	start := time.Now()
	if err := ctrl.Arm("sim", "testhost"); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Arm took %s, want under 2s (1ms delay plus the fixed 1s sleep)", elapsed)
	}
}
