// Package handle provides the typed handle arena behind every object the
// bridge hands to its host.
//
// Native engine objects (compiled modules, instances, exported functions)
// never leave the bridge. The host only receives a Handle: a small value
// carrying a kind tag, a slot index, a generation counter and the identity of
// the table that minted it. All fields are unexported, so the only way to
// obtain a usable Handle is through Table.Insert, which the runtime calls
// from its load/instantiate/lookup operations.
//
// # Extraction
//
// Table.Get validates a handle before returning the native value:
//
//	value, err := table.Get(h, handle.KindModule)
//
//	zero Handle{}              -> errors.KindConstructorMisuse
//	minted by another table    -> errors.KindTypeMismatch ("foreign handle")
//	wrong kind tag             -> errors.KindTypeMismatch
//	released (stale generation)-> errors.KindUseAfterFree
//
// Slots are reused after release, but every release bumps the slot's
// generation, so a stale handle can never alias the slot's next occupant.
//
// # Ownership
//
// Every entry records the handle it was derived from (an instance records its
// module, a function records its instance). InsertBorrowing additionally
// pins the parent: Remove refuses to release an entry while it is borrowed
// and returns errors.KindInUse instead. Children lists the entries derived
// from a parent so callers can cascade a release.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	cancel := table.Subscribe(handle.ObserverFunc(func(e handle.Event) {
//	    if e.Type == handle.EventReleased {
//	        log.Printf("%s released", e.Handle)
//	    }
//	}))
//	defer cancel()
//
// Observers are notified synchronously after the table lock is released.
package handle
