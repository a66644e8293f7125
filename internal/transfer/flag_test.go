package transfer

import (
	"errors"
	"testing"

	"github.com/litianfu1997/openssh/internal/apperr"
)

func TestControlFlagCancelIsTerminal(t *testing.T) {
	var f ControlFlag
	if f.Load() != Running {
		t.Fatalf("zero flag = %v, want running", f.Load())
	}
	f.Set(Paused)
	if f.Load() != Paused {
		t.Fatalf("after pause = %v", f.Load())
	}
	f.Set(Cancelled)
	f.Set(Running)
	if f.Load() != Cancelled {
		t.Errorf("resume after cancel = %v, want cancelled", f.Load())
	}
}

func TestFlagsRegistry(t *testing.T) {
	r := NewFlags()
	f, err := r.Register("t1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("t1"); !errors.Is(err, apperr.Invalid) {
		t.Errorf("duplicate Register err = %v, want Invalid", err)
	}
	if !r.Set("t1", Paused) || f.Load() != Paused {
		t.Errorf("Set did not reach the registered flag")
	}
	if r.Set("ghost", Cancelled) {
		t.Errorf("Set on unknown id reported success")
	}

	r.Remove("t1", &ControlFlag{})
	if len(r.Snapshot()) != 1 {
		t.Fatalf("Remove with a foreign flag deregistered the id")
	}
	if s := r.Snapshot()[0]; s.TransferID != "t1" || s.State != "paused" {
		t.Errorf("Snapshot = %+v", s)
	}
	r.Remove("t1", f)
	if len(r.Snapshot()) != 0 {
		t.Errorf("Snapshot after Remove = %v", r.Snapshot())
	}
}
