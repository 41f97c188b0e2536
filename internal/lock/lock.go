// Package lock implements the per-site lock table that enforces strict
// two-phase locking over the engine's data items.
package lock

import "fmt"

// Mode is the type of a lock: shared (READ) or exclusive (WRITE).
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Holder is an opaque reference to the transaction that owns a lock. It
// carries only an id and a cached name so that releasing a lock never
// requires fixing up a back-pointer into the transaction itself.
type Holder struct {
	ID   int
	Name string
}

// Lock pairs a lock mode with the transaction that owns it. Two locks are
// equal iff both fields are equal.
type Lock struct {
	Mode   Mode
	Holder Holder
}

func (l Lock) Equal(other Lock) bool {
	return l.Mode == other.Mode && l.Holder == other.Holder
}

func (l Lock) String() string {
	return fmt.Sprintf("%s(%s)", l.Mode, l.Holder.Name)
}

// Table is a per-site mapping from variable name to the ordered sequence of
// distinct locks currently held on it.
//
// Invariants enforced by callers (Set does not check them and does not
// itself arbitrate conflicts — that is the data manager's job):
//   - at most one WRITE lock per variable
//   - if a WRITE lock is present, no READ locks from other transactions
//   - multiple READ locks from distinct transactions may coexist
type Table struct {
	locks map[string][]Lock
}

// NewTable returns an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[string][]Lock)}
}

// Set appends (mode, holder) to the lock set for variable if it is not
// already present. Reports whether a new lock was recorded.
func (t *Table) Set(holder Holder, mode Mode, variable string) bool {
	l := Lock{Mode: mode, Holder: holder}
	for _, existing := range t.locks[variable] {
		if existing.Equal(l) {
			return false
		}
	}
	t.locks[variable] = append(t.locks[variable], l)
	return true
}

// IsLocked reports whether any lock is held on variable.
func (t *Table) IsLocked(variable string) bool {
	return len(t.locks[variable]) > 0
}

// IsWriteLocked reports whether a WRITE lock is held on variable.
func (t *Table) IsWriteLocked(variable string) bool {
	for _, l := range t.locks[variable] {
		if l.Mode == Write {
			return true
		}
	}
	return false
}

// IsLockedBy reports whether holder holds a lock on variable. If modes is
// non-empty, the held lock must match one of the given modes; otherwise any
// mode held by holder satisfies the query.
func (t *Table) IsLockedBy(holder Holder, variable string, modes ...Mode) bool {
	for _, l := range t.locks[variable] {
		if l.Holder != holder {
			continue
		}
		if len(modes) == 0 {
			return true
		}
		for _, m := range modes {
			if l.Mode == m {
				return true
			}
		}
	}
	return false
}

// Locks returns the current lock set on variable, in acquisition order. The
// returned slice is a copy; callers must not mutate the table through it.
func (t *Table) Locks(variable string) []Lock {
	existing := t.locks[variable]
	out := make([]Lock, len(existing))
	copy(out, existing)
	return out
}

// Len returns the number of locks currently held on variable.
func (t *Table) Len(variable string) int {
	return len(t.locks[variable])
}

// Clear removes a specific lock from variable's lock set, dropping the
// variable's entry entirely once empty. Reports whether a lock was
// actually removed.
func (t *Table) Clear(l Lock, variable string) bool {
	existing := t.locks[variable]
	for i, candidate := range existing {
		if candidate.Equal(l) {
			existing = append(existing[:i], existing[i+1:]...)
			if len(existing) == 0 {
				delete(t.locks, variable)
			} else {
				t.locks[variable] = existing
			}
			return true
		}
	}
	return false
}

// ClearHolder removes every lock held by holder across all variables,
// returning the variable names that were touched.
func (t *Table) ClearHolder(holder Holder) []string {
	var touched []string
	for variable, existing := range t.locks {
		kept := existing[:0:0]
		changed := false
		for _, l := range existing {
			if l.Holder == holder {
				changed = true
				continue
			}
			kept = append(kept, l)
		}
		if !changed {
			continue
		}
		touched = append(touched, variable)
		if len(kept) == 0 {
			delete(t.locks, variable)
		} else {
			t.locks[variable] = kept
		}
	}
	return touched
}

// Variables returns the names of every variable with at least one lock,
// for callers that need to union per-site tables into a global view.
func (t *Table) Variables() []string {
	out := make([]string, 0, len(t.locks))
	for variable := range t.locks {
		out = append(out, variable)
	}
	return out
}
