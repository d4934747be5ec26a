package handle

import (
	"sync"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert(KindModule, "mod", Handle{})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h.IsZero() {
		t.Fatal("Expected non-zero handle")
	}
	if h.Kind() != KindModule {
		t.Fatalf("Expected module kind, got %s", h.Kind())
	}

	val, err := table.Get(h, KindModule)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "mod" {
		t.Fatalf("Expected 'mod', got %v", val)
	}

	if !table.IsKind(h, KindModule) {
		t.Fatal("IsKind(module) should be true")
	}
	if table.IsKind(h, KindInstance) {
		t.Fatal("IsKind(instance) should be false")
	}

	val, err = table.Remove(h, KindModule)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "mod" {
		t.Fatalf("Expected 'mod', got %v", val)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestTable_ExtractionErrors(t *testing.T) {
	table := NewTable()
	other := NewTable()

	mod, _ := table.Insert(KindModule, "mod", Handle{})
	foreign, _ := other.Insert(KindModule, "other", Handle{})

	released, _ := table.Insert(KindModule, "gone", Handle{})
	if _, err := table.Remove(released, KindModule); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	tests := []struct {
		name string
		h    Handle
		kind Kind
		want errors.Kind
	}{
		{"zero_handle", Handle{}, KindModule, errors.KindConstructorMisuse},
		{"wrong_kind", mod, KindInstance, errors.KindTypeMismatch},
		{"foreign_table", foreign, KindModule, errors.KindTypeMismatch},
		{"released", released, KindModule, errors.KindUseAfterFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Get(tt.h, tt.kind)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsKind(err, tt.want) {
				t.Errorf("error %v is not %s", err, tt.want)
			}
		})
	}
}

func TestTable_GenerationPreventsAliasing(t *testing.T) {
	table := NewTable()

	first, _ := table.Insert(KindModule, "first", Handle{})
	if _, err := table.Remove(first, KindModule); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	second, _ := table.Insert(KindModule, "second", Handle{})
	if second.slot != first.slot {
		t.Fatalf("Expected slot reuse, got %d and %d", first.slot, second.slot)
	}
	if second == first {
		t.Fatal("Reused slot must carry a new generation")
	}

	if _, err := table.Get(first, KindModule); !errors.IsKind(err, errors.KindUseAfterFree) {
		t.Fatalf("Stale handle should fail with use_after_free, got %v", err)
	}
	val, err := table.Get(second, KindModule)
	if err != nil || val != "second" {
		t.Fatalf("Get(second) = %v, %v", val, err)
	}
}

func TestTable_DoubleRemove(t *testing.T) {
	table := NewTable()
	h, _ := table.Insert(KindModule, "mod", Handle{})

	if _, err := table.Remove(h, KindModule); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	_, err := table.Remove(h, KindModule)
	if !errors.IsKind(err, errors.KindUseAfterFree) {
		t.Fatalf("second Remove should fail with use_after_free, got %v", err)
	}
}

func TestTable_BorrowingBlocksRemove(t *testing.T) {
	table := NewTable()

	mod, _ := table.Insert(KindModule, "mod", Handle{})
	inst, err := table.InsertBorrowing(KindInstance, "inst", mod)
	if err != nil {
		t.Fatalf("InsertBorrowing failed: %v", err)
	}

	if n, _ := table.Borrows(mod); n != 1 {
		t.Fatalf("Expected 1 borrow, got %d", n)
	}

	_, err = table.Remove(mod, KindModule)
	if !errors.IsKind(err, errors.KindInUse) {
		t.Fatalf("Remove of borrowed module should fail with in_use, got %v", err)
	}
	if !table.IsKind(mod, KindModule) {
		t.Fatal("Failed Remove must leave the entry live")
	}

	if _, err := table.Remove(inst, KindInstance); err != nil {
		t.Fatalf("Remove instance failed: %v", err)
	}
	if n, _ := table.Borrows(mod); n != 0 {
		t.Fatalf("Expected borrow returned, got %d", n)
	}
	if _, err := table.Remove(mod, KindModule); err != nil {
		t.Fatalf("Remove module failed: %v", err)
	}
}

func TestTable_ParentAndChildren(t *testing.T) {
	table := NewTable()

	inst, _ := table.Insert(KindInstance, "inst", Handle{})
	f1, _ := table.Insert(KindFunction, "f1", inst)
	f2, _ := table.Insert(KindFunction, "f2", inst)
	other, _ := table.Insert(KindFunction, "other", Handle{})

	parent, err := table.Parent(f1)
	if err != nil {
		t.Fatalf("Parent failed: %v", err)
	}
	if parent != inst {
		t.Fatalf("Parent = %s, want %s", parent, inst)
	}

	children := table.Children(inst)
	if len(children) != 2 || children[0] != f1 || children[1] != f2 {
		t.Fatalf("Children = %v, want [%s %s]", children, f1, f2)
	}
	for _, c := range children {
		if c == other {
			t.Fatal("unrelated handle listed as child")
		}
	}
}

func TestTable_InsertWithDeadParent(t *testing.T) {
	table := NewTable()

	inst, _ := table.Insert(KindInstance, "inst", Handle{})
	table.Remove(inst, KindInstance)

	_, err := table.Insert(KindFunction, "f", inst)
	if !errors.IsKind(err, errors.KindUseAfterFree) {
		t.Fatalf("Insert under released parent should fail, got %v", err)
	}

	_, err = table.InsertBorrowing(KindInstance, "i", Handle{})
	if !errors.IsKind(err, errors.KindConstructorMisuse) {
		t.Fatalf("InsertBorrowing with zero parent should fail, got %v", err)
	}

	_, err = table.Insert(KindInvalid, "x", Handle{})
	if !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Fatalf("Insert of invalid kind should fail, got %v", err)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	cancel := table.Subscribe(obs)

	mod, _ := table.Insert(KindModule, "mod", Handle{})
	inst, _ := table.InsertBorrowing(KindInstance, "inst", mod)

	want := []EventType{EventCreated, EventCreated, EventBorrowed}
	if len(obs.events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(obs.events))
	}
	for i, typ := range want {
		if obs.events[i].Type != typ {
			t.Fatalf("event %d = %s, want %s", i, obs.events[i].Type, typ)
		}
	}
	if obs.events[1].Parent != mod {
		t.Fatal("Created event should carry parent")
	}

	table.Remove(inst, KindInstance)
	last := obs.events[len(obs.events)-2:]
	if last[0].Type != EventReleased || last[0].Handle != inst {
		t.Fatalf("Expected released event for instance, got %+v", last[0])
	}
	if last[1].Type != EventBorrowReturned || last[1].Handle != mod {
		t.Fatalf("Expected borrow returned on module, got %+v", last[1])
	}

	cancel()
	n := len(obs.events)
	table.Insert(KindModule, "mod2", Handle{})
	if len(obs.events) != n {
		t.Fatal("Should not receive events after cancel")
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable()
	var created int
	cancel := table.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventCreated {
			created++
		}
	}))
	defer cancel()

	table.Insert(KindModule, "a", Handle{})
	table.Insert(KindModule, "b", Handle{})
	if created != 2 {
		t.Fatalf("Expected 2 created events, got %d", created)
	}
}

func TestTable_LenKindAndEach(t *testing.T) {
	table := NewTable()

	mod, _ := table.Insert(KindModule, "m", Handle{})
	table.Insert(KindInstance, "i1", mod)
	table.Insert(KindInstance, "i2", mod)

	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}
	if table.LenKind(KindInstance) != 2 {
		t.Fatalf("LenKind(instance) = %d, want 2", table.LenKind(KindInstance))
	}

	var seen []any
	table.Each(KindInstance, func(h Handle, v any) bool {
		seen = append(seen, v)
		return true
	})
	if len(seen) != 2 || seen[0] != "i2" || seen[1] != "i1" {
		t.Fatalf("Each visited %v, want [i2 i1]", seen)
	}

	count := 0
	table.Each(KindInvalid, func(Handle, any) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Each should stop after false, visited %d", count)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	h, _ := table.Insert(KindModule, "a", Handle{})

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := table.Insert(KindModule, "b", Handle{}); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("Insert after Close should fail with closed, got %v", err)
	}
	if _, err := table.Get(h, KindModule); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("Get after Close should fail with closed, got %v", err)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, err := table.Insert(KindFunction, j, Handle{})
				if err != nil {
					t.Errorf("Insert failed: %v", err)
					return
				}
				if _, err := table.Remove(h, KindFunction); err != nil {
					t.Errorf("Remove failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if table.Len() != 0 {
		t.Fatalf("Expected empty table, got %d", table.Len())
	}
}

func TestHandle_String(t *testing.T) {
	if (Handle{}).String() != "<nil handle>" {
		t.Errorf("zero handle string = %q", Handle{}.String())
	}
	table := NewTable()
	h, _ := table.Insert(KindFunction, nil, Handle{})
	if h.String() != "function#1.0" {
		t.Errorf("String() = %q", h.String())
	}
}
