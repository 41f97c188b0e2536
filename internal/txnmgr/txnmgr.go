// Package txnmgr implements the transaction manager: the component that
// drives begin/read/write/end, maintains the blocked and waiting queues,
// detects deadlocks by cycle-finding in the wait-for graph, and resolves
// them by aborting the youngest transaction in the cycle.
package txnmgr

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/apsdehal/RepCRec/internal/lock"
	"github.com/apsdehal/RepCRec/internal/sitemgr"
	"github.com/apsdehal/RepCRec/internal/txn"
)

// opKind distinguishes a pending operation's shape; it is purely internal
// bookkeeping for the blocked/waiting queues.
type opKind int

const (
	opRead opKind = iota
	opWrite
	opReadOnly
)

// blockerRef is one out-edge of the wait-for graph: T waits on blocker,
// recorded at a distinct logical time so concurrent blockers on the same
// operation remain individually orderable.
type blockerRef struct {
	name string
	time int
}

// blockedState is the pending operation a transaction is blocked on, plus
// every transaction currently blocking it.
type blockedState struct {
	op       opKind
	variable string
	value    int
	blockers []blockerRef
}

// waitingState is the pending operation a transaction is waiting to
// retry, because every site that could serve it was unavailable.
type waitingState struct {
	time     int
	op       opKind
	variable string
	value    int
}

// Manager is the transaction manager.
type Manager struct {
	sites *sitemgr.Manager
	log   zerolog.Logger

	transactions map[string]*txn.Transaction
	nextID       int
	clock        int

	blocked map[string]blockedState

	waiting      map[string]waitingState
	waitingOrder []string
}

// New creates a transaction manager driving site through sites.
func New(sites *sitemgr.Manager, logger zerolog.Logger) *Manager {
	return &Manager{
		sites:        sites,
		log:          logger,
		transactions: make(map[string]*txn.Transaction),
		blocked:      make(map[string]blockedState),
		waiting:      make(map[string]waitingState),
	}
}

func (tm *Manager) nextTime() int {
	tm.clock++
	return tm.clock
}

// Tick advances the logical clock once, as every incoming instruction
// does.
func (tm *Manager) Tick() {
	tm.clock++
}

func holderOf(t *txn.Transaction) lock.Holder {
	return lock.Holder{ID: t.ID, Name: t.Name}
}

// Transaction returns the named transaction, or nil if it never began.
func (tm *Manager) Transaction(name string) *txn.Transaction {
	return tm.transactions[name]
}

// Lookup returns the named transaction or ErrUnknownTransaction, for
// callers (such as tests) that want a strict error rather
// than the tick-processing entry points' silent no-op.
func (tm *Manager) Lookup(name string) (*txn.Transaction, error) {
	t, ok := tm.transactions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, name)
	}
	return t, nil
}

// RunPreludes runs the four preludes the driver must apply before every
// dispatched instruction: release state for already-aborted
// transactions, detect and resolve deadlocks, promote fully-unblocked
// transactions to waiting, and retry every waiting operation.
func (tm *Manager) RunPreludes() {
	tm.clearAborted()
	tm.detectAndClearDeadlocks()
	tm.blockedToWaiting()
	tm.tryWaiting()
}

// Begin starts a read-write transaction named name.
func (tm *Manager) Begin(name string) {
	if _, exists := tm.transactions[name]; exists {
		return
	}
	t := txn.New(tm.nextID, name, false)
	tm.nextID++
	tm.transactions[name] = t
	tm.log.Info().Str("event", "begin").Str("txn", name).Int("id", t.ID).Msg("transaction started")
}

// BeginReadOnly starts a read-only transaction, freezing a snapshot of
// every currently visible variable.
func (tm *Manager) BeginReadOnly(name string) {
	if _, exists := tm.transactions[name]; exists {
		return
	}
	t := txn.New(tm.nextID, name, true)
	tm.nextID++
	t.Snapshot = tm.sites.CurrentVariables()
	tm.transactions[name] = t
	tm.log.Info().Str("event", "beginRO").Str("txn", name).Int("id", t.ID).Msg("read-only transaction started")
}

// MarkAborted immediately flags name ABORTED, in response to an
// exogenous event (a hosting site failing). Residual lock/queue state is
// released by the next clearAborted sweep, per spec.md §4.9.
func (tm *Manager) MarkAborted(name string) {
	t := tm.transactions[name]
	if t == nil || t.Status.Terminal() {
		return
	}
	t.Status = txn.Aborted
	tm.log.Warn().Str("event", "abort").Str("txn", name).Str("reason", "site failure").Msg("transaction aborted")
}

// clearAborted releases all residual lock and queue state for every
// transaction already marked ABORTED.
func (tm *Manager) clearAborted() {
	for name, t := range tm.transactions {
		if t.Status != txn.Aborted {
			continue
		}
		tm.sites.ReleaseAll(holderOf(t))
		delete(tm.blocked, name)
		tm.removeWaiting(name)
	}
}

// Write implements the transaction-manager write operation of
// spec.md §4.5.
func (tm *Manager) Write(name, variableName string, value int) {
	t := tm.transactions[name]
	if t == nil {
		return
	}
	if t.Status.Terminal() {
		return
	}
	holder := holderOf(t)

	if tm.sites.HolderHasLock(holder, variableName, lock.Write) {
		t.UncommittedWrites[variableName] = value
		tm.settleStatus(t)
		tm.log.Info().Str("event", "write").Str("txn", name).Str("var", variableName).Int("value", value).Msg("write staged")
		return
	}

	status := tm.sites.GetLocks(holder, lock.Write, variableName)
	switch status {
	case lock.GotLock, lock.GotLockRecovering:
		t.UncommittedWrites[variableName] = value
		tm.settleStatus(t)
		tm.log.Info().Str("event", "write").Str("txn", name).Str("var", variableName).Int("value", value).Msg("got write lock")
	case lock.AllSitesDown:
		t.Status = txn.Waiting
		tm.setWaiting(name, opWrite, variableName, value)
		tm.log.Info().Str("event", "waiting").Str("txn", name).Str("var", variableName).Msg("all sites hosting variable are down")
	case lock.NoLock:
		blockers := tm.sites.ConflictingHolders(variableName, lock.Write, holder)
		t.Status = txn.Blocked
		tm.setBlocked(name, blockers, opWrite, variableName, value)
		tm.log.Info().Str("event", "blocked").Str("txn", name).Str("var", variableName).Strs("blockers", blockers).Msg("write blocked")
	}
}

// Read implements the transaction-manager read operation of
// spec.md §4.5, dispatching to the read-only snapshot path when
// appropriate.
func (tm *Manager) Read(name, variableName string) {
	t := tm.transactions[name]
	if t == nil {
		return
	}
	if t.Status.Terminal() {
		return
	}
	if t.ReadOnly {
		tm.readSnapshot(t, variableName)
		return
	}

	holder := holderOf(t)

	if tm.sites.HolderHasLock(holder, variableName, lock.Write) {
		v := t.UncommittedWrites[variableName]
		t.RecordRead(variableName, v)
		tm.settleStatus(t)
		tm.log.Info().Str("event", "read").Str("txn", name).Str("var", variableName).Int("value", v).Msg("read own uncommitted write")
		return
	}

	if tm.sites.HolderHasLock(holder, variableName, lock.Read) {
		v, _ := tm.sites.CurrentValue(variableName)
		t.RecordRead(variableName, v)
		tm.settleStatus(t)
		tm.log.Info().Str("event", "read").Str("txn", name).Str("var", variableName).Int("value", v).Msg("read under held lock")
		return
	}

	if writers := tm.writeBlockersOn(variableName); len(writers) > 0 {
		t.Status = txn.Blocked
		tm.setBlocked(name, writers, opRead, variableName, 0)
		tm.log.Info().Str("event", "blocked").Str("txn", name).Str("var", variableName).Strs("blockers", writers).Msg("read blocks behind pending writer")
		return
	}

	status := tm.sites.GetLocks(holder, lock.Read, variableName)
	switch status {
	case lock.GotLock, lock.GotLockRecovering:
		v, _ := tm.sites.CurrentValue(variableName)
		t.RecordRead(variableName, v)
		t.Status = txn.Running
		tm.log.Info().Str("event", "read").Str("txn", name).Str("var", variableName).Int("value", v).
			Bool("recovering", status == lock.GotLockRecovering).Msg("got read lock")
	case lock.AllSitesDown:
		t.Status = txn.Waiting
		tm.setWaiting(name, opRead, variableName, 0)
		tm.log.Info().Str("event", "waiting").Str("txn", name).Str("var", variableName).Msg("all sites hosting variable are down")
	case lock.NoLock:
		blockers := tm.sites.ConflictingHolders(variableName, lock.Read, holder)
		t.Status = txn.Blocked
		tm.setBlocked(name, blockers, opRead, variableName, 0)
		tm.log.Info().Str("event", "blocked").Str("txn", name).Str("var", variableName).Strs("blockers", blockers).Msg("read blocked")
	}
}

func (tm *Manager) readSnapshot(t *txn.Transaction, variableName string) {
	if v, ok := t.Snapshot[variableName]; ok {
		t.RecordRead(variableName, v)
		tm.log.Info().Str("event", "read").Str("txn", t.Name).Str("var", variableName).Int("value", v).Bool("snapshot", true).Msg("read from snapshot")
		return
	}
	// Not visible at begin time (every hosting replica was down). It can
	// only become visible again by recovering to the same, still-current
	// committed value, since no commit can land while every replica is
	// down — so lazily resolving it later does not break snapshot
	// isolation. See DESIGN.md, Open Question (beginRO missing variable).
	if v, ok := tm.sites.CurrentValue(variableName); ok {
		t.Snapshot[variableName] = v
		t.RecordRead(variableName, v)
		tm.log.Info().Str("event", "read").Str("txn", t.Name).Str("var", variableName).Int("value", v).Bool("snapshot", true).Msg("read from snapshot (resolved late)")
		return
	}
	t.Status = txn.Waiting
	tm.setWaiting(t.Name, opReadOnly, variableName, 0)
	tm.log.Info().Str("event", "waiting").Str("txn", t.Name).Str("var", variableName).Msg("snapshot entry not yet resolvable")
}

// writeBlockersOn returns the distinct transaction names currently
// BLOCKED on a pending WRITE to variableName, so an incoming reader can
// queue behind them too and avoid a read-starves-writer inversion.
func (tm *Manager) writeBlockersOn(variableName string) []string {
	var names []string
	for name, st := range tm.blocked {
		if st.op == opWrite && st.variable == variableName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// settleStatus restores t to RUNNING unless it still has an outstanding
// blocked or waiting entry for some other variable.
func (tm *Manager) settleStatus(t *txn.Transaction) {
	if _, blocked := tm.blocked[t.Name]; blocked {
		t.Status = txn.Blocked
		return
	}
	if _, waiting := tm.waiting[t.Name]; waiting {
		t.Status = txn.Waiting
		return
	}
	t.Status = txn.Running
}

func (tm *Manager) setBlocked(name string, blockerNames []string, op opKind, variableName string, value int) {
	refs := make([]blockerRef, 0, len(blockerNames))
	for _, b := range blockerNames {
		refs = append(refs, blockerRef{name: b, time: tm.nextTime()})
	}
	tm.blocked[name] = blockedState{op: op, variable: variableName, value: value, blockers: refs}
	tm.removeWaiting(name)
}

func (tm *Manager) setWaiting(name string, op opKind, variableName string, value int) {
	if _, exists := tm.waiting[name]; !exists {
		tm.waitingOrder = append(tm.waitingOrder, name)
	}
	tm.waiting[name] = waitingState{time: tm.nextTime(), op: op, variable: variableName, value: value}
}

func (tm *Manager) removeWaiting(name string) {
	if _, exists := tm.waiting[name]; !exists {
		return
	}
	delete(tm.waiting, name)
	for i, n := range tm.waitingOrder {
		if n == name {
			tm.waitingOrder = append(tm.waitingOrder[:i], tm.waitingOrder[i+1:]...)
			break
		}
	}
}

// blockedToWaiting promotes a blocked transaction to waiting once every
// transaction blocking it has terminated (committed or aborted).
// Duplicate waiting entries are never created because waiting is keyed
// by transaction name.
func (tm *Manager) blockedToWaiting() {
	names := make([]string, 0, len(tm.blocked))
	for name := range tm.blocked {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := tm.blocked[name]
		kept := st.blockers[:0:0]
		for _, b := range st.blockers {
			blocker := tm.transactions[b.name]
			if blocker != nil && !blocker.Status.Terminal() {
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 {
			st.blockers = kept
			tm.blocked[name] = st
			continue
		}
		delete(tm.blocked, name)
		t := tm.transactions[name]
		if t == nil || t.Status.Terminal() {
			continue
		}
		t.Status = txn.Waiting
		tm.setWaiting(name, st.op, st.variable, st.value)
		tm.log.Info().Str("event", "blocked_to_waiting").Str("txn", name).Str("var", st.variable).Msg("last blocker resolved")
	}
}

// tryWaiting replays every waiting entry's operation, in ascending
// logical-time order (ties broken by insertion order, which
// waitingOrder already preserves). Entries whose transaction becomes
// RUNNING are removed; entries that block move to the blocked queue;
// entries that wait again stay, without being duplicated.
func (tm *Manager) tryWaiting() {
	order := append([]string(nil), tm.waitingOrder...)
	sort.SliceStable(order, func(i, j int) bool {
		return tm.waiting[order[i]].time < tm.waiting[order[j]].time
	})

	for _, name := range order {
		st, exists := tm.waiting[name]
		if !exists {
			continue
		}
		t := tm.transactions[name]
		if t == nil || t.Status.Terminal() {
			tm.removeWaiting(name)
			continue
		}

		// The entry being replayed is not an outstanding wait on some other
		// variable; an operation that has to wait again re-enters it.
		tm.removeWaiting(name)
		t.Status = txn.Running
		switch st.op {
		case opWrite:
			tm.Write(name, st.variable, st.value)
		case opRead:
			tm.Read(name, st.variable)
		case opReadOnly:
			tm.readSnapshot(t, st.variable)
		}

		if t.Status == txn.Running {
			tm.removeWaiting(name)
		} else if t.Status == txn.Blocked {
			tm.removeWaiting(name)
		}
	}
}

// End commits a transaction: spec.md §4.5. A repeated end on an already
// terminal transaction is a no-op.
func (tm *Manager) End(name string) {
	t := tm.transactions[name]
	if t == nil {
		return
	}
	if t.Status.Terminal() {
		return
	}

	tm.sites.CommitWrites(t.UncommittedWrites)
	tm.sites.ReleaseAll(holderOf(t))
	delete(tm.blocked, name)
	tm.removeWaiting(name)
	t.Status = txn.Committed
	tm.log.Info().Str("event", "commit").Str("txn", name).Int("writes", len(t.UncommittedWrites)).Msg("transaction committed")

	tm.RunPreludes()
}

// Abort marks a transaction ABORTED directly (used for exogenous
// aborts and, for completeness, any future explicit abort instruction).
// Uncommitted writes are discarded by construction: they are simply
// never applied.
func (tm *Manager) Abort(name string) {
	t := tm.transactions[name]
	if t == nil || t.Status.Terminal() {
		return
	}
	delete(tm.blocked, name)
	tm.removeWaiting(name)
	tm.sites.ReleaseAll(holderOf(t))
	t.Status = txn.Aborted
	tm.log.Info().Str("event", "abort").Str("txn", name).Msg("transaction aborted")
}

// detectAndClearDeadlocks finds and resolves every cycle in the wait-for
// graph built from the current blocked map, aborting the youngest
// transaction in each cycle, until no cycle remains (spec.md §4.6).
func (tm *Manager) detectAndClearDeadlocks() {
	for {
		cycle := tm.findCycle()
		if cycle == nil {
			return
		}
		victim := tm.youngest(cycle)
		tm.log.Warn().Str("event", "deadlock").Strs("cycle", cycle).Str("victim", victim).Msg("deadlock detected")
		tm.Abort(victim)
	}
}

// findCycle performs a DFS over the wait-for graph (edges T -> B for
// every current blocker B of T), visiting transactions in a fixed,
// sorted order for determinism. It returns the first cycle found, as the
// suffix of the DFS stack starting at the earliest revisited entry.
func (tm *Manager) findCycle() []string {
	names := make([]string, 0, len(tm.blocked))
	for name := range tm.blocked {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	onStack := make(map[string]int)
	var stack []string

	var dfs func(string) []string
	dfs = func(t string) []string {
		visited[t] = true
		onStack[t] = len(stack)
		stack = append(stack, t)

		st, isBlocked := tm.blocked[t]
		if isBlocked {
			blockers := make([]string, len(st.blockers))
			for i, b := range st.blockers {
				blockers[i] = b.name
			}
			sort.Strings(blockers)
			for _, b := range blockers {
				if idx, onPath := onStack[b]; onPath {
					cycle := make([]string, len(stack)-idx)
					copy(cycle, stack[idx:])
					return cycle
				}
				if !visited[b] {
					if cyc := dfs(b); cyc != nil {
						return cyc
					}
				}
			}
		}

		delete(onStack, t)
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, n := range names {
		if !visited[n] {
			if cyc := dfs(n); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// youngest returns the transaction with the largest id among names; ids
// are unique by construction (assigned from a single monotonic counter),
// so ties cannot occur.
func (tm *Manager) youngest(names []string) string {
	best := ""
	bestID := -1
	for _, name := range names {
		t := tm.transactions[name]
		if t == nil {
			continue
		}
		if t.ID > bestID {
			bestID = t.ID
			best = name
		}
	}
	return best
}
