package sitemgr

import (
	"testing"

	"github.com/apsdehal/RepCRec/internal/lock"
	"github.com/apsdehal/RepCRec/internal/site"
)

func TestGetLocksWriteRequiresEverySite(t *testing.T) {
	m := New(10, 20)
	t1 := lock.Holder{ID: 1, Name: "T1"}
	t2 := lock.Holder{ID: 2, Name: "T2"}

	// x2 is replicated: T2 takes a read lock at site 1 only, which must
	// not block T1's write everywhere else, but does block it at site 1.
	s1, _ := m.Site(1)
	s1.GetLock(t2, lock.Read, "x2")

	status := m.GetLocks(t1, lock.Write, "x2")
	if status != lock.NoLock {
		t.Fatalf("GetLocks(write) = %v, want NoLock (site 1 conflicts)", status)
	}
}

func TestGetLocksWriteGrantedAcrossAllSites(t *testing.T) {
	m := New(10, 20)
	t1 := lock.Holder{ID: 1, Name: "T1"}

	status := m.GetLocks(t1, lock.Write, "x2")
	if status != lock.GotLock {
		t.Fatalf("GetLocks(write) = %v, want GotLock", status)
	}
	if !m.HolderHasLock(t1, "x2", lock.Write) {
		t.Error("expected T1 to hold the write lock at every site hosting x2")
	}
}

func TestGetLocksAllSitesDown(t *testing.T) {
	m := New(2, 20)
	m.Fail(1)
	m.Fail(2)
	t1 := lock.Holder{ID: 1, Name: "T1"}

	status := m.GetLocks(t1, lock.Read, "x2")
	if status != lock.AllSitesDown {
		t.Fatalf("GetLocks(read) = %v, want AllSitesDown", status)
	}
}

func TestGetLocksReadPrefersFirstEligibleSite(t *testing.T) {
	m := New(10, 20)
	m.Fail(1)
	t1 := lock.Holder{ID: 1, Name: "T1"}

	status := m.GetLocks(t1, lock.Read, "x2")
	if status != lock.GotLock {
		t.Fatalf("GetLocks(read) = %v, want GotLock (site 2 still up)", status)
	}
}

func TestConflictingHoldersExcludesRequester(t *testing.T) {
	m := New(10, 20)
	t1 := lock.Holder{ID: 1, Name: "T1"}
	m.GetLocks(t1, lock.Read, "x2")

	conflicts := m.ConflictingHolders("x2", lock.Read, t1)
	if len(conflicts) != 0 {
		t.Errorf("expected the requester's own lock not to count as a conflict, got %v", conflicts)
	}
}

func TestConflictingHoldersReadIgnoresOtherReaders(t *testing.T) {
	m := New(10, 20)
	t1 := lock.Holder{ID: 1, Name: "T1"}
	t2 := lock.Holder{ID: 2, Name: "T2"}
	m.GetLocks(t1, lock.Read, "x2")

	conflicts := m.ConflictingHolders("x2", lock.Read, t2)
	if len(conflicts) != 0 {
		t.Errorf("expected a read request not to conflict with another reader, got %v", conflicts)
	}
}

func TestFailReturnsHoldersAndRecoverRestoresStatus(t *testing.T) {
	m := New(10, 20)
	t1 := lock.Holder{ID: 1, Name: "T1"}
	m.GetLocks(t1, lock.Write, "x2")

	holders, err := m.Fail(1)
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if len(holders) != 1 || holders[0] != t1 {
		t.Errorf("Fail(1) holders = %v, want [%v]", holders, t1)
	}

	if err := m.Recover(1); err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	s, _ := m.Site(1)
	if s.Status() == site.Down {
		t.Error("expected site 1 to have left DOWN status after Recover")
	}
}

func TestInvalidSiteIndex(t *testing.T) {
	m := New(10, 20)
	if _, err := m.Site(0); err == nil {
		t.Error("expected Site(0) to error")
	}
	if _, err := m.Site(11); err == nil {
		t.Error("expected Site(11) to error")
	}
}

func TestCommitWritesAppliesToUpAndRecoveringSites(t *testing.T) {
	m := New(10, 20)
	m.CommitWrites(map[string]int{"x2": 42})
	v, ok := m.CurrentValue("x2")
	if !ok || v != 42 {
		t.Errorf("CurrentValue(x2) = (%d, %t), want (42, true)", v, ok)
	}
}
