package transfer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/litianfu1997/openssh/internal/apperr"
)

// State is the control state of one transfer.
type State uint32

const (
	Running State = iota
	Paused
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// ControlFlag is read by the transfer loop before every chunk and written by
// pause, resume and cancel. Cancelled is terminal.
type ControlFlag struct {
	v atomic.Uint32
}

func (f *ControlFlag) Load() State { return State(f.v.Load()) }

// Set moves the flag to s unless it is already Cancelled.
func (f *ControlFlag) Set(s State) {
	for {
		cur := f.v.Load()
		if State(cur) == Cancelled || State(cur) == s {
			return
		}
		if f.v.CompareAndSwap(cur, uint32(s)) {
			return
		}
	}
}

// Flags maps transfer ids to the flags of transfers in flight.
type Flags struct {
	mu sync.RWMutex
	m  map[string]*ControlFlag
}

func NewFlags() *Flags {
	return &Flags{m: make(map[string]*ControlFlag)}
}

// Register adds a Running flag for id. An id that is still in flight is
// rejected.
func (r *Flags) Register(id string) (*ControlFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; ok {
		return nil, apperr.New(apperr.Invalid, "start transfer", "transfer %q is already running", id)
	}
	f := &ControlFlag{}
	r.m[id] = f
	return f, nil
}

// Remove deregisters id if it still maps to f.
func (r *Flags) Remove(id string, f *ControlFlag) {
	r.mu.Lock()
	if r.m[id] == f {
		delete(r.m, id)
	}
	r.mu.Unlock()
}

// Set writes s to the flag for id. Unknown ids are ignored; it reports
// whether the id was registered.
func (r *Flags) Set(id string, s State) bool {
	r.mu.RLock()
	f := r.m[id]
	r.mu.RUnlock()
	if f == nil {
		return false
	}
	f.Set(s)
	return true
}

// Snapshot lists the registered ids with their current state, ordered by id.
func (r *Flags) Snapshot() []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.m))
	for id, f := range r.m {
		out = append(out, Status{TransferID: id, State: f.Load().String()})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TransferID < out[j].TransferID })
	return out
}

// Status is one entry of Snapshot.
type Status struct {
	TransferID string `json:"transferId"`
	State      string `json:"state"`
}
