package registry

import (
	"strings"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	reg := New(Config{Clock: func() time.Time { return now }})
	return reg, &now
}

func mustRegister(t *testing.T, reg *Registry, info AgentInfo) AgentInfo {
	t.Helper()
	stored, err := reg.Register(info)
	if err != nil {
		t.Fatalf("Register(%s): %v", info.AgentID, err)
	}
	return stored
}

func TestRegisterDefaults(t *testing.T) {
	reg, now := newTestRegistry(t)
	stored := mustRegister(t, reg, AgentInfo{AgentID: "sales-1", Type: TypeSales})
	if stored.MaxLoad != 10 {
		t.Fatalf("MaxLoad = %d, want default 10", stored.MaxLoad)
	}
	if stored.Status != StatusIdle {
		t.Fatalf("Status = %s, want idle", stored.Status)
	}
	if !stored.LastActive.Equal(*now) {
		t.Fatalf("LastActive = %v, want %v", stored.LastActive, *now)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if _, err := reg.Register(AgentInfo{AgentID: "  ", Type: TypeSales}); err == nil {
		t.Fatal("blank agent id should be rejected")
	}
	if _, err := reg.Register(AgentInfo{AgentID: "x-1", Type: "wizard"}); err == nil {
		t.Fatal("unknown agent type should be rejected")
	}
}

func TestReRegisterMovesTypeIndex(t *testing.T) {
	reg, _ := newTestRegistry(t)
	mustRegister(t, reg, AgentInfo{AgentID: "a-1", Type: TypeSales})
	mustRegister(t, reg, AgentInfo{AgentID: "a-1", Type: TypeManager})

	if got := reg.ListByType(TypeSales); len(got) != 0 {
		t.Fatalf("sales index still holds %d agents", len(got))
	}
	if got := reg.ListByType(TypeManager); len(got) != 1 || got[0].AgentID != "a-1" {
		t.Fatalf("manager index = %v", got)
	}
}

func TestUnregister(t *testing.T) {
	reg, _ := newTestRegistry(t)
	mustRegister(t, reg, AgentInfo{AgentID: "a-1", Type: TypeSales})
	if !reg.Unregister("a-1") {
		t.Fatal("Unregister should report true for a known agent")
	}
	if reg.Unregister("a-1") {
		t.Fatal("second Unregister should report false")
	}
	if reg.IsTypeRegistered(TypeSales) {
		t.Fatal("type index should be empty after unregister")
	}
}

func TestAcquireReleaseLoadInvariant(t *testing.T) {
	reg, _ := newTestRegistry(t)
	mustRegister(t, reg, AgentInfo{AgentID: "a-1", Type: TypeSales, MaxLoad: 2})

	if err := reg.Acquire("a-1"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	info, _ := reg.Get("a-1")
	if info.CurrentLoad != 1 || info.Status != StatusActive {
		t.Fatalf("after first acquire: %+v", info)
	}

	if err := reg.Acquire("a-1"); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	info, _ = reg.Get("a-1")
	if info.CurrentLoad != 2 || info.Status != StatusBusy {
		t.Fatalf("at capacity: %+v", info)
	}

	err := reg.Acquire("a-1")
	if err == nil || !strings.Contains(err.Error(), "at capacity") {
		t.Fatalf("over-capacity Acquire = %v", err)
	}

	reg.Release("a-1")
	info, _ = reg.Get("a-1")
	if info.CurrentLoad != 1 || info.Status != StatusActive {
		t.Fatalf("after release: %+v", info)
	}

	reg.Release("a-1")
	info, _ = reg.Get("a-1")
	if info.CurrentLoad != 0 || info.Status != StatusIdle {
		t.Fatalf("drained agent should return to idle: %+v", info)
	}

	reg.Release("a-1")
	info, _ = reg.Get("a-1")
	if info.CurrentLoad != 0 {
		t.Fatalf("release must not drive load negative: %+v", info)
	}
}

func TestAcquireUnknownAgent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if err := reg.Acquire("ghost"); err == nil {
		t.Fatal("Acquire on unknown agent should fail")
	}
}

func TestAvailableAndLoadRatio(t *testing.T) {
	info := AgentInfo{Status: StatusIdle, CurrentLoad: 3, MaxLoad: 4}
	if !info.Available() {
		t.Fatal("idle agent should be available")
	}
	if got := info.LoadRatio(); got != 0.75 {
		t.Fatalf("LoadRatio = %v, want 0.75", got)
	}
	info.Status = StatusOffline
	if info.Available() {
		t.Fatal("offline agent should not be available")
	}
	info.MaxLoad = 0
	if got := info.LoadRatio(); got != 1 {
		t.Fatalf("LoadRatio with zero capacity = %v, want 1", got)
	}
}

func TestListSortedByID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	for _, id := range []string{"c-1", "a-1", "b-1"} {
		mustRegister(t, reg, AgentInfo{AgentID: id, Type: TypeSales})
	}
	list := reg.List()
	if len(list) != 3 || list[0].AgentID != "a-1" || list[2].AgentID != "c-1" {
		t.Fatalf("List order = %v", list)
	}
}

func TestGetByType(t *testing.T) {
	reg, _ := newTestRegistry(t)
	mustRegister(t, reg, AgentInfo{AgentID: "s-1", Type: TypeSales})
	mustRegister(t, reg, AgentInfo{AgentID: "s-2", Type: TypeSales})

	info, ok := reg.GetByType(TypeSales)
	if !ok || info.AgentID != "s-1" {
		t.Fatalf("GetByType = %+v, %v", info, ok)
	}
	if _, ok := reg.GetByType(TypeManager); ok {
		t.Fatal("GetByType should miss for an empty type")
	}
}

func TestSummary(t *testing.T) {
	reg, _ := newTestRegistry(t)
	mustRegister(t, reg, AgentInfo{AgentID: "s-1", Type: TypeSales, MaxLoad: 5})
	mustRegister(t, reg, AgentInfo{AgentID: "s-2", Type: TypeSales, MaxLoad: 5})
	mustRegister(t, reg, AgentInfo{AgentID: "m-1", Type: TypeManager, MaxLoad: 2})
	if err := reg.Acquire("s-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	s := reg.Summary()
	if s.TotalAgents != 3 || s.TotalLoad != 1 || s.TotalSlots != 12 {
		t.Fatalf("summary = %+v", s)
	}
	if s.ByType[TypeSales] != 2 || s.ByType[TypeManager] != 1 {
		t.Fatalf("by type = %v", s.ByType)
	}
	if s.ByStatus[StatusActive] != 1 || s.ByStatus[StatusIdle] != 2 {
		t.Fatalf("by status = %v", s.ByStatus)
	}
}
