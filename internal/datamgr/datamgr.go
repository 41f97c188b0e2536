// Package datamgr implements the per-site data manager: the container of
// resident variables and the site-local lock table that arbitrates access
// to them.
package datamgr

import (
	"fmt"

	"github.com/apsdehal/RepCRec/internal/lock"
	"github.com/apsdehal/RepCRec/internal/variable"
)

// Manager is the per-site data manager. It hosts every variable whose
// index satisfies the placement rule for siteID and owns that site's lock
// table.
type Manager struct {
	SiteID    int
	lockTable *lock.Table
	values    map[string]int
	indexOf   map[string]int
}

// New builds a data manager for siteID, populating it with every variable
// (of numVariables total) that the placement rule assigns to this site.
func New(siteID, numVariables, numSites int) *Manager {
	m := &Manager{
		SiteID:    siteID,
		lockTable: lock.NewTable(),
		values:    make(map[string]int),
		indexOf:   make(map[string]int),
	}
	for i := 1; i <= numVariables; i++ {
		if variable.HostsVariable(i, siteID, numSites) {
			name := variable.Name(i)
			m.values[name] = variable.InitialValue(i)
			m.indexOf[name] = i
		}
	}
	return m
}

// HasVariable reports whether name is resident at this site.
func (m *Manager) HasVariable(name string) bool {
	_, ok := m.values[name]
	return ok
}

// IndexOf returns the numeric index backing a resident variable name.
func (m *Manager) IndexOf(name string) (int, bool) {
	idx, ok := m.indexOf[name]
	return idx, ok
}

// Value returns the current committed value of a resident variable.
func (m *Manager) Value(name string) (int, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Variables returns every variable name resident at this site.
func (m *Manager) Variables() []string {
	out := make([]string, 0, len(m.values))
	for name := range m.values {
		out = append(out, name)
	}
	return out
}

// LockTable exposes the underlying lock table for callers that need to
// union per-site tables into a global view (the transaction manager does
// this to enumerate blocking holders).
func (m *Manager) LockTable() *lock.Table {
	return m.lockTable
}

// GetLock attempts to grant holder a lock of the given mode on variable.
// It grants iff either holder already holds some lock on variable and is
// the sole holder (an upgrade or a same-mode re-entry), or the requested
// mode is compatible with the current lock set (WRITE requires zero
// locks; READ requires no WRITE lock). A grant records the requested
// mode for holder. Returns false, recording nothing, when neither
// condition holds.
func (m *Manager) GetLock(holder lock.Holder, mode lock.Mode, variableName string) bool {
	if m.lockTable.IsLockedBy(holder, variableName) {
		sole := true
		for _, l := range m.lockTable.Locks(variableName) {
			if l.Holder != holder {
				sole = false
				break
			}
		}
		if sole {
			m.lockTable.Set(holder, mode, variableName)
			return true
		}
	}

	switch mode {
	case lock.Write:
		if m.lockTable.IsLocked(variableName) {
			return false
		}
	case lock.Read:
		if m.lockTable.IsWriteLocked(variableName) {
			return false
		}
	}

	m.lockTable.Set(holder, mode, variableName)
	return true
}

// Write applies a committed write. It is the caller's responsibility
// (the site, in practice) to have confirmed holder holds a WRITE lock on
// variable before calling this; Write itself only requires that the
// variable be resident.
func (m *Manager) Write(variableName string, value int) error {
	if !m.HasVariable(variableName) {
		return fmt.Errorf("datamgr: site %d does not host %s", m.SiteID, variableName)
	}
	m.values[variableName] = value
	return nil
}

// ClearLock removes a specific lock from variable, delegating to the lock
// table.
func (m *Manager) ClearLock(l lock.Lock, variableName string) bool {
	return m.lockTable.Clear(l, variableName)
}

// ClearHolder releases every lock holder owns at this site, returning the
// touched variable names.
func (m *Manager) ClearHolder(holder lock.Holder) []string {
	return m.lockTable.ClearHolder(holder)
}
