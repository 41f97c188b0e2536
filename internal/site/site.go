// Package site wraps a per-site data manager with a status (UP, DOWN,
// RECOVERING) and the recovered set that gates which resident variables
// are currently safe to read.
package site

import (
	"fmt"

	"github.com/apsdehal/RepCRec/internal/datamgr"
	"github.com/apsdehal/RepCRec/internal/lock"
	"github.com/apsdehal/RepCRec/internal/variable"
)

// Status is a site's closed set of lifecycle states.
type Status int

const (
	Up Status = iota
	Down
	Recovering
)

func (s Status) String() string {
	switch s {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Recovering:
		return "RECOVERING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Site is one of the engine's fixed replicas.
type Site struct {
	ID           int
	status       Status
	dataManager  *datamgr.Manager
	recoveredSet map[string]bool
	numVariables int
	numSites     int
}

// New creates site index (1-based) UP, with every variable the placement
// rule assigns to it already in its recovered set.
func New(index, numVariables, numSites int) *Site {
	s := &Site{
		ID:           index,
		status:       Up,
		dataManager:  datamgr.New(index, numVariables, numSites),
		recoveredSet: make(map[string]bool),
		numVariables: numVariables,
		numSites:     numSites,
	}
	for _, name := range s.dataManager.Variables() {
		s.recoveredSet[name] = true
	}
	return s
}

// Status returns the site's current lifecycle state.
func (s *Site) Status() Status {
	return s.status
}

// DataManager exposes the underlying data manager.
func (s *Site) DataManager() *datamgr.Manager {
	return s.dataManager
}

// IsRecovered reports whether variableName is currently safe to read at
// this site.
func (s *Site) IsRecovered(variableName string) bool {
	return s.recoveredSet[variableName]
}

// GetLock requests a lock for holder on variableName, gated by site
// status: only UP and RECOVERING sites grant locks at all; RECOVERING
// sites additionally refuse READ locks on variables not yet in the
// recovered set (callers are expected to have already filtered those out
// via IsRecovered, this is a defensive second check).
func (s *Site) GetLock(holder lock.Holder, mode lock.Mode, variableName string) bool {
	switch s.status {
	case Down:
		return false
	case Recovering:
		if mode == lock.Read && !s.recoveredSet[variableName] {
			return false
		}
	}
	return s.dataManager.GetLock(holder, mode, variableName)
}

// Write applies a committed write, a no-op when the site is DOWN or the
// variable is not resident. This is the only path by which an
// even-indexed replica rejoins the recovered set after a failure: a
// RECOVERING site that receives the write adds the variable to its
// recovered set regardless of whether it was already there.
func (s *Site) Write(variableName string, value int) error {
	if s.status == Down {
		return nil
	}
	if !s.dataManager.HasVariable(variableName) {
		return nil
	}
	if err := s.dataManager.Write(variableName, value); err != nil {
		return err
	}
	s.recoveredSet[variableName] = true
	s.promoteIfFullyRecovered()
	return nil
}

// ClearLock delegates to the data manager.
func (s *Site) ClearLock(l lock.Lock, variableName string) bool {
	return s.dataManager.ClearLock(l, variableName)
}

// Fail transitions UP/RECOVERING -> DOWN: the recovered set is cleared
// and every lock held at this site is dropped. It returns the holders
// whose locks were dropped, so the caller (the transaction manager, via
// the site manager) can mark those transactions ABORTED.
func (s *Site) Fail() []lock.Holder {
	s.status = Down
	s.recoveredSet = make(map[string]bool)

	seen := make(map[lock.Holder]bool)
	var holders []lock.Holder
	for _, name := range s.dataManager.Variables() {
		for _, l := range s.dataManager.LockTable().Locks(name) {
			if !seen[l.Holder] {
				seen[l.Holder] = true
				holders = append(holders, l.Holder)
			}
		}
	}
	for _, h := range holders {
		s.dataManager.ClearHolder(h)
	}
	return holders
}

// Recover transitions DOWN -> RECOVERING. Odd-indexed (single-copy)
// variables rejoin the recovered set immediately, since there is only one
// copy and its pre-failure committed value is still valid. Even-indexed
// replicas stay absent from the recovered set until a post-recovery
// commit writes them. If every resident variable is already recovered
// (true for a site whose residents are all single-copy), the site
// becomes UP immediately.
func (s *Site) Recover() {
	s.status = Recovering
	for i := 1; i <= s.numVariables; i++ {
		if !variable.HostsVariable(i, s.ID, s.numSites) {
			continue
		}
		if !variable.IsReplicated(i) {
			s.recoveredSet[variable.Name(i)] = true
		}
	}
	s.promoteIfFullyRecovered()
}

func (s *Site) promoteIfFullyRecovered() {
	if s.status != Recovering {
		return
	}
	for _, name := range s.dataManager.Variables() {
		if !s.recoveredSet[name] {
			return
		}
	}
	s.status = Up
}

// VariableDump is one line of a site dump: a variable's name, its current
// committed value, and whether it is currently unavailable for reading.
type VariableDump struct {
	Name         string
	Value        int
	NotAvailable bool
}

// Dump returns one VariableDump per resident variable, sorted by name as a
// string (so "x10" precedes "x2"),
// annotating variables absent from the recovered set as unavailable.
func (s *Site) Dump() []VariableDump {
	names := s.dataManager.Variables()
	out := make([]VariableDump, 0, len(names))
	for _, name := range names {
		value, _ := s.dataManager.Value(name)
		out = append(out, VariableDump{
			Name:         name,
			Value:        value,
			NotAvailable: !s.recoveredSet[name],
		})
	}
	sortDumps(out)
	return out
}

func sortDumps(dumps []VariableDump) {
	for i := 1; i < len(dumps); i++ {
		for j := i; j > 0 && dumps[j].Name < dumps[j-1].Name; j-- {
			dumps[j], dumps[j-1] = dumps[j-1], dumps[j]
		}
	}
}
