package handle

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-bridge/errors"
)

var nextOwner atomic.Uint32

// Table is an arena of typed entries addressed by generation-checked handles.
type Table struct {
	entries   []entry
	freeList  []uint32
	observers []registration
	owner     uint32
	nextObsID uint64
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value       any
	parent      Handle
	gen         uint32
	borrowCount uint32
	kind        Kind
	pinsParent  bool
	valid       bool
}

type registration struct {
	observer Observer
	id       uint64
}

// NewTable creates an empty table with a process-unique owner identity.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 16),
		freeList: make([]uint32, 0, 8),
		owner:    nextOwner.Add(1),
	}
}

// Insert stores value under a new handle of the given kind.
// parent may be the zero Handle; otherwise it must be live.
func (t *Table) Insert(kind Kind, value any, parent Handle) (Handle, error) {
	return t.insert(kind, value, parent, false)
}

// InsertBorrowing is like Insert but also borrows parent until the new
// entry is removed.
func (t *Table) InsertBorrowing(kind Kind, value any, parent Handle) (Handle, error) {
	if parent.IsZero() {
		return Handle{}, errors.ConstructorMisuse(errors.PhaseHandle)
	}
	return t.insert(kind, value, parent, true)
}

func (t *Table) insert(kind Kind, value any, parent Handle, pin bool) (Handle, error) {
	if kind == KindInvalid {
		return Handle{}, errors.InvalidArgument(errors.PhaseHandle, "cannot insert entry of kind %s", kind)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Handle{}, errors.Closed(errors.PhaseHandle, "handle table")
	}

	if !parent.IsZero() {
		p, err := t.lookupLocked(parent, parent.kind)
		if err != nil {
			t.mu.Unlock()
			return Handle{}, err
		}
		if pin {
			p.borrowCount++
		}
	}

	e := entry{
		value:      value,
		parent:     parent,
		kind:       kind,
		pinsParent: pin,
		valid:      true,
	}

	var slot uint32
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e.gen = t.entries[slot-1].gen
		t.entries[slot-1] = e
	} else {
		t.entries = append(t.entries, e)
		slot = uint32(len(t.entries))
	}
	h := Handle{owner: t.owner, slot: slot, gen: e.gen, kind: kind}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Parent: parent, Value: value})
	if pin {
		t.notify(Event{Type: EventBorrowed, Handle: parent, Parent: h})
	}
	return h, nil
}

// lookupLocked validates h against the expected kind. Caller holds t.mu.
func (t *Table) lookupLocked(h Handle, kind Kind) (*entry, error) {
	if h.IsZero() {
		return nil, errors.ConstructorMisuse(errors.PhaseHandle)
	}
	if h.owner != t.owner {
		return nil, errors.New(errors.PhaseHandle, errors.KindTypeMismatch).
			Detail("foreign handle %s", h).
			Value(h).
			Build()
	}
	if h.kind != kind {
		return nil, errors.TypeMismatch(errors.PhaseHandle, kind.String(), h.kind.String())
	}
	if t.closed {
		return nil, errors.Closed(errors.PhaseHandle, "handle table")
	}
	if int(h.slot) > len(t.entries) {
		return nil, errors.ConstructorMisuse(errors.PhaseHandle)
	}
	e := &t.entries[h.slot-1]
	if !e.valid || e.gen != h.gen || e.kind != kind {
		return nil, errors.UseAfterFree(errors.PhaseHandle, kind.String())
	}
	return e, nil
}

// Get returns the value stored under h after checking its kind and liveness.
func (t *Table) Get(h Handle, kind Kind) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, err := t.lookupLocked(h, kind)
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// IsKind reports whether h is a live handle of the given kind minted by t.
func (t *Table) IsKind(h Handle, kind Kind) bool {
	_, err := t.Get(h, kind)
	return err == nil
}

// Parent returns the handle h was derived from.
func (t *Table) Parent(h Handle) (Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, err := t.lookupLocked(h, h.kind)
	if err != nil {
		return Handle{}, err
	}
	return e.parent, nil
}

// Borrows returns the number of outstanding borrows on h.
func (t *Table) Borrows(h Handle) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, err := t.lookupLocked(h, h.kind)
	if err != nil {
		return 0, err
	}
	return int(e.borrowCount), nil
}

// Remove releases h and returns its value. An entry that is still borrowed
// is left in place and errors.KindInUse is returned.
func (t *Table) Remove(h Handle, kind Kind) (any, error) {
	t.mu.Lock()
	e, err := t.lookupLocked(h, kind)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	if e.borrowCount > 0 {
		n := int(e.borrowCount)
		t.mu.Unlock()
		return nil, errors.InUse(errors.PhaseRelease, kind.String(), n)
	}

	value := e.value
	parent := e.parent
	returned := false
	if e.pinsParent {
		if p, perr := t.lookupLocked(parent, parent.kind); perr == nil && p.borrowCount > 0 {
			p.borrowCount--
			returned = true
		}
	}

	e.valid = false
	e.value = nil
	e.parent = Handle{}
	e.pinsParent = false
	e.gen++
	t.freeList = append(t.freeList, h.slot)
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Handle: h, Parent: parent, Value: value})
	if returned {
		t.notify(Event{Type: EventBorrowReturned, Handle: parent, Parent: h})
	}
	return value, nil
}

// Children returns the live handles whose parent is h, in slot order.
func (t *Table) Children(h Handle) []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Handle
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid && e.parent == h {
			out = append(out, Handle{owner: t.owner, slot: uint32(i + 1), gen: e.gen, kind: e.kind})
		}
	}
	return out
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for i := range t.entries {
		if t.entries[i].valid {
			count++
		}
	}
	return count
}

// LenKind returns the number of live entries of the given kind.
func (t *Table) LenKind(kind Kind) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].kind == kind {
			count++
		}
	}
	return count
}

// Each iterates over live entries of the given kind, newest first, until fn
// returns false. KindInvalid iterates over every kind. fn must not modify t.
func (t *Table) Each(kind Kind, fn func(Handle, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.entries) - 1; i >= 0; i-- {
		e := &t.entries[i]
		if !e.valid || (kind != KindInvalid && e.kind != kind) {
			continue
		}
		if !fn(Handle{owner: t.owner, slot: uint32(i + 1), gen: e.gen, kind: e.kind}, e.value) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table) Subscribe(o Observer) (cancel func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()

	t.nextObsID++
	id := t.nextObsID
	t.observers = append(t.observers, registration{observer: o, id: id})

	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		for i, r := range t.observers {
			if r.id == id {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// Close invalidates every entry and stops accepting inserts. Values are not
// released; callers tear native objects down before closing the table.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for i := range t.entries {
		t.entries[i].valid = false
		t.entries[i].value = nil
	}
	t.entries = nil
	t.freeList = nil
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, r := range t.observers {
		r.observer.OnHandleEvent(e)
	}
}
