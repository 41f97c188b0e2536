// Package sitemgr mediates replica selection across available,
// recovering, and failed sites: it is the only component that enumerates
// a variable's replicas, arbitrates locks across them, and routes
// fail/recover/dump requests to the right site.
package sitemgr

import (
	"fmt"
	"sort"

	"github.com/apsdehal/RepCRec/internal/lock"
	"github.com/apsdehal/RepCRec/internal/site"
	"github.com/apsdehal/RepCRec/internal/variable"
)

// ErrInvalidSiteIndex is returned when a site index falls outside
// 1..NumSites.
var ErrInvalidSiteIndex = fmt.Errorf("sitemgr: invalid site index")

// Manager owns every site and is the sole router between the transaction
// manager and the per-site data managers.
type Manager struct {
	sites        map[int]*site.Site
	numSites     int
	numVariables int
}

// New creates numSites sites (1-based ids), each populated according to
// the placement rule over numVariables variables.
func New(numSites, numVariables int) *Manager {
	m := &Manager{
		sites:        make(map[int]*site.Site, numSites),
		numSites:     numSites,
		numVariables: numVariables,
	}
	for i := 1; i <= numSites; i++ {
		m.sites[i] = site.New(i, numVariables, numSites)
	}
	return m
}

// NumSites returns the configured number of sites.
func (m *Manager) NumSites() int { return m.numSites }

// NumVariables returns the configured number of variables.
func (m *Manager) NumVariables() int { return m.numVariables }

func (m *Manager) checkIndex(index int) error {
	if index < 1 || index > m.numSites {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidSiteIndex, index, m.numSites)
	}
	return nil
}

// Site returns the site at index, or an error if index is out of range.
func (m *Manager) Site(index int) (*site.Site, error) {
	if err := m.checkIndex(index); err != nil {
		return nil, err
	}
	return m.sites[index], nil
}

// GetLocks enumerates the sites hosting variableName and requests mode on
// behalf of holder at each eligible one, per spec.md §4.4:
//
//  1. DOWN sites are skipped.
//  2. For a RECOVERING site and mode=READ, the site is skipped unless
//     variableName is already in its recovered set; if it is, and
//     variableName is single-copy (odd-indexed), the outcome is flagged
//     GotLockRecovering.
//  3. The site's data manager is asked to grant the lock.
//
// For READ, the first eligible site that grants the lock produces the
// answer. For WRITE, every eligible site must grant — one refusal yields
// NoLock, and the WRITE locks this call already took at other sites are
// released again. If no site was eligible at all, the result is AllSitesDown: the
// operation must wait, not block.
func (m *Manager) GetLocks(holder lock.Holder, mode lock.Mode, variableName string) lock.AcquireStatus {
	idx, ok := variable.Index(variableName)
	if !ok {
		return lock.NoLock
	}
	siteIDs := variable.Sites(idx, m.numSites)

	anyEligible := false
	if mode == lock.Write {
		var granted []int
		for _, id := range siteIDs {
			s := m.sites[id]
			if s.Status() == site.Down {
				continue
			}
			anyEligible = true
			if !s.GetLock(holder, mode, variableName) {
				for _, g := range granted {
					m.sites[g].ClearLock(lock.Lock{Mode: mode, Holder: holder}, variableName)
				}
				return lock.NoLock
			}
			granted = append(granted, id)
		}
		if !anyEligible {
			return lock.AllSitesDown
		}
		return lock.GotLock
	}

	for _, id := range siteIDs {
		s := m.sites[id]
		recovering := false
		switch s.Status() {
		case site.Down:
			continue
		case site.Recovering:
			if !s.IsRecovered(variableName) {
				continue
			}
			if !variable.IsReplicated(idx) {
				recovering = true
			}
		}
		anyEligible = true
		if s.GetLock(holder, mode, variableName) {
			if recovering {
				return lock.GotLockRecovering
			}
			return lock.GotLock
		}
	}
	if !anyEligible {
		return lock.AllSitesDown
	}
	return lock.NoLock
}

// ClearLock releases a specific lock from every site hosting variableName.
func (m *Manager) ClearLock(l lock.Lock, variableName string) {
	idx, ok := variable.Index(variableName)
	if !ok {
		return
	}
	for _, id := range variable.Sites(idx, m.numSites) {
		m.sites[id].ClearLock(l, variableName)
	}
}

// ReleaseAll drops every lock holder owns, at every site.
func (m *Manager) ReleaseAll(holder lock.Holder) {
	for _, s := range m.sites {
		s.DataManager().ClearHolder(holder)
	}
}

// HolderHasLock reports whether holder holds a lock of mode on
// variableName at any site that hosts it — sufficient to detect "this
// transaction already holds a WRITE lock" because a WRITE grant, by the
// available-copies protocol, is only ever recorded once it has been
// granted at every eligible site.
func (m *Manager) HolderHasLock(holder lock.Holder, variableName string, mode lock.Mode) bool {
	idx, ok := variable.Index(variableName)
	if !ok {
		return false
	}
	for _, id := range variable.Sites(idx, m.numSites) {
		if m.sites[id].DataManager().LockTable().IsLockedBy(holder, variableName, mode) {
			return true
		}
	}
	return false
}

// ConflictingHolders returns the distinct transaction names, in the order
// first observed, holding a lock on variableName (at any site hosting it)
// that conflicts with a request for mode by requester: for a WRITE
// request, any other holder at all; for a READ request, any other
// holder's WRITE lock.
func (m *Manager) ConflictingHolders(variableName string, mode lock.Mode, requester lock.Holder) []string {
	idx, ok := variable.Index(variableName)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, id := range variable.Sites(idx, m.numSites) {
		for _, l := range m.sites[id].DataManager().LockTable().Locks(variableName) {
			if l.Holder == requester {
				continue
			}
			if mode == lock.Read && l.Mode != lock.Write {
				continue
			}
			if seen[l.Holder.Name] {
				continue
			}
			seen[l.Holder.Name] = true
			names = append(names, l.Holder.Name)
		}
	}
	return names
}

// CurrentValue returns the currently visible value of one variable by
// polling UP sites first, then RECOVERING sites restricted to their
// recovered sets. Used at beginRO to freeze a snapshot entry.
func (m *Manager) CurrentValue(variableName string) (int, bool) {
	idx, ok := variable.Index(variableName)
	if !ok {
		return 0, false
	}
	siteIDs := variable.Sites(idx, m.numSites)

	for _, id := range siteIDs {
		s := m.sites[id]
		if s.Status() == site.Up {
			if v, ok := s.DataManager().Value(variableName); ok {
				return v, true
			}
		}
	}
	for _, id := range siteIDs {
		s := m.sites[id]
		if s.Status() == site.Recovering && s.IsRecovered(variableName) {
			if v, ok := s.DataManager().Value(variableName); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// CurrentVariables returns a snapshot of every variable's currently
// visible value, keyed by name, omitting variables with no currently
// readable replica.
func (m *Manager) CurrentVariables() map[string]int {
	snapshot := make(map[string]int, m.numVariables)
	for i := 1; i <= m.numVariables; i++ {
		name := variable.Name(i)
		if v, ok := m.CurrentValue(name); ok {
			snapshot[name] = v
		}
	}
	return snapshot
}

// CommitWrites applies every entry of writes to every site hosting its
// variable that is currently UP or RECOVERING, updating each site's
// recovered set in the process (the available-copies write protocol). A
// RECOVERING site that accepts the write joins the recovered set for that
// variable, per the open-question resolution in DESIGN.md.
func (m *Manager) CommitWrites(writes map[string]int) {
	names := make([]string, 0, len(writes))
	for name := range writes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := writes[name]
		idx, ok := variable.Index(name)
		if !ok {
			continue
		}
		for _, id := range variable.Sites(idx, m.numSites) {
			s := m.sites[id]
			if s.Status() == site.Up || s.Status() == site.Recovering {
				_ = s.Write(name, value)
			}
		}
	}
}

// Fail marks site index DOWN, dropping its recovered set and every lock
// it held. It returns the holders whose locks were dropped so the
// transaction manager can abort them.
func (m *Manager) Fail(index int) ([]lock.Holder, error) {
	s, err := m.Site(index)
	if err != nil {
		return nil, err
	}
	return s.Fail(), nil
}

// Recover marks site index RECOVERING.
func (m *Manager) Recover(index int) error {
	s, err := m.Site(index)
	if err != nil {
		return err
	}
	s.Recover()
	return nil
}

// SiteDump pairs a site id with its variable dump, for callers that print
// or serialize the whole topology.
type SiteDump struct {
	SiteID int
	Status site.Status
	Vars   []site.VariableDump
}

// DumpAll returns a dump of every UP or RECOVERING site, in ascending
// site-id order.
func (m *Manager) DumpAll() []SiteDump {
	ids := make([]int, 0, len(m.sites))
	for id := range m.sites {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]SiteDump, 0, len(ids))
	for _, id := range ids {
		s := m.sites[id]
		if s.Status() == site.Down {
			continue
		}
		out = append(out, SiteDump{SiteID: id, Status: s.Status(), Vars: s.Dump()})
	}
	return out
}

// DumpSite returns the dump for a single site regardless of status.
func (m *Manager) DumpSite(index int) (SiteDump, error) {
	s, err := m.Site(index)
	if err != nil {
		return SiteDump{}, err
	}
	return SiteDump{SiteID: index, Status: s.Status(), Vars: s.Dump()}, nil
}

// VariableDumpEntry is one site's view of a single variable, for the
// `dump(xj)` form that reports a variable across every site that hosts
// it.
type VariableDumpEntry struct {
	SiteID       int
	Value        int
	NotAvailable bool
}

// DumpVariable returns variableName's value at every site that hosts it
// (and is not DOWN), in ascending site-id order.
func (m *Manager) DumpVariable(variableName string) []VariableDumpEntry {
	idx, ok := variable.Index(variableName)
	if !ok {
		return nil
	}
	var out []VariableDumpEntry
	for _, id := range variable.Sites(idx, m.numSites) {
		s := m.sites[id]
		if s.Status() == site.Down {
			continue
		}
		v, _ := s.DataManager().Value(variableName)
		out = append(out, VariableDumpEntry{
			SiteID:       id,
			Value:        v,
			NotAvailable: !s.IsRecovered(variableName),
		})
	}
	return out
}
