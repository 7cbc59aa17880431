package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type AgentType string

const (
	TypeCoordinator          AgentType = "coordinator"
	TypeSales                AgentType = "sales"
	TypeManager              AgentType = "manager"
	TypeFieldService         AgentType = "field_service"
	TypeCustomerSupport      AgentType = "customer_support"
	TypePatentCoordinator    AgentType = "patent_coordinator"
	TypePatentDataCollection AgentType = "patent_data_collection"
	TypePatentSearch         AgentType = "patent_search"
	TypePatentAnalysis       AgentType = "patent_analysis"
	TypePatentReport         AgentType = "patent_report"
)

func ParseAgentType(s string) (AgentType, bool) {
	t := AgentType(strings.TrimSpace(s))
	switch t {
	case TypeCoordinator, TypeSales, TypeManager, TypeFieldService,
		TypeCustomerSupport, TypePatentCoordinator, TypePatentDataCollection,
		TypePatentSearch, TypePatentAnalysis, TypePatentReport:
		return t, true
	}
	return "", false
}

type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

type AgentInfo struct {
	AgentID      string    `json:"agent_id"`
	Type         AgentType `json:"agent_type"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Status       Status    `json:"status"`
	Capabilities []string  `json:"capabilities"`
	CurrentLoad  int       `json:"current_load"`
	MaxLoad      int       `json:"max_load"`
	LastActive   time.Time `json:"last_active"`
}

func (a AgentInfo) LoadRatio() float64 {
	if a.MaxLoad <= 0 {
		return 1
	}
	return float64(a.CurrentLoad) / float64(a.MaxLoad)
}

// Available reports whether the agent can take new work.
func (a AgentInfo) Available() bool {
	return a.Status == StatusActive || a.Status == StatusIdle
}

type Config struct {
	DefaultMaxLoad int
	Clock          func() time.Time
}

// Registry is the process-wide agent directory: a single map keyed by agent
// id with a type index maintained on register/unregister. All mutation goes
// through its methods.
type Registry struct {
	mu     sync.RWMutex
	cfg    Config
	agents map[string]*AgentInfo
	byType map[AgentType][]string
}

func New(cfg Config) *Registry {
	if cfg.DefaultMaxLoad <= 0 {
		cfg.DefaultMaxLoad = 10
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{
		cfg:    cfg,
		agents: map[string]*AgentInfo{},
		byType: map[AgentType][]string{},
	}
}

func (r *Registry) Register(info AgentInfo) (AgentInfo, error) {
	info.AgentID = strings.TrimSpace(info.AgentID)
	if info.AgentID == "" {
		return AgentInfo{}, fmt.Errorf("agent_id is required")
	}
	if _, ok := ParseAgentType(string(info.Type)); !ok {
		return AgentInfo{}, fmt.Errorf("unknown agent type %q", info.Type)
	}
	if info.MaxLoad <= 0 {
		info.MaxLoad = r.cfg.DefaultMaxLoad
	}
	if info.Status == "" {
		info.Status = StatusIdle
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	info.LastActive = r.cfg.Clock().UTC()
	if existing, ok := r.agents[info.AgentID]; ok && existing.Type != info.Type {
		r.removeFromTypeIndexLocked(existing.Type, info.AgentID)
	}
	if _, ok := r.agents[info.AgentID]; !ok || r.agents[info.AgentID].Type != info.Type {
		r.byType[info.Type] = append(r.byType[info.Type], info.AgentID)
	}
	stored := info
	r.agents[info.AgentID] = &stored
	return stored, nil
}

func (r *Registry) Unregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[agentID]
	if !ok {
		return false
	}
	delete(r.agents, agentID)
	r.removeFromTypeIndexLocked(info.Type, agentID)
	return true
}

func (r *Registry) removeFromTypeIndexLocked(t AgentType, agentID string) {
	ids := r.byType[t]
	for i, id := range ids {
		if id == agentID {
			r.byType[t] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (r *Registry) Get(agentID string) (AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.agents[agentID]
	if !ok {
		return AgentInfo{}, false
	}
	return *info, true
}

// GetByType returns the first registered agent of the given type. Lookup by
// id or type covers both shapes the HTTP layer accepts.
func (r *Registry) GetByType(t AgentType) (AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.byType[t] {
		if info, ok := r.agents[id]; ok {
			return *info, true
		}
	}
	return AgentInfo{}, false
}

func (r *Registry) IsTypeRegistered(t AgentType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[t]) > 0
}

func (r *Registry) List() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentInfo, 0, len(r.agents))
	for _, info := range r.agents {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func (r *Registry) ListByType(t AgentType) []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentInfo, 0, len(r.byType[t]))
	for _, id := range r.byType[t] {
		if info, ok := r.agents[id]; ok {
			out = append(out, *info)
		}
	}
	return out
}

// Acquire increments the agent's load ahead of a dispatch. Callers must pair
// every successful Acquire with a Release so the invariant
// 0 <= CurrentLoad <= MaxLoad holds on all paths.
func (r *Registry) Acquire(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not registered", agentID)
	}
	if info.CurrentLoad >= info.MaxLoad {
		return fmt.Errorf("agent %s at capacity (%d/%d)", agentID, info.CurrentLoad, info.MaxLoad)
	}
	info.CurrentLoad++
	if info.CurrentLoad >= info.MaxLoad {
		info.Status = StatusBusy
	} else if info.Status == StatusIdle {
		info.Status = StatusActive
	}
	info.LastActive = r.cfg.Clock().UTC()
	return nil
}

func (r *Registry) Release(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[agentID]
	if !ok {
		return
	}
	if info.CurrentLoad > 0 {
		info.CurrentLoad--
	}
	if info.Status == StatusBusy && info.CurrentLoad < info.MaxLoad {
		info.Status = StatusActive
	}
	if info.CurrentLoad == 0 && info.Status == StatusActive {
		info.Status = StatusIdle
	}
	info.LastActive = r.cfg.Clock().UTC()
}

func (r *Registry) SetStatus(agentID string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[agentID]
	if !ok {
		return false
	}
	info.Status = status
	info.LastActive = r.cfg.Clock().UTC()
	return true
}

type StatusSummary struct {
	TotalAgents int               `json:"total_agents"`
	ByStatus    map[Status]int    `json:"by_status"`
	ByType      map[AgentType]int `json:"by_type"`
	TotalLoad   int               `json:"total_load"`
	TotalSlots  int               `json:"total_capacity"`
}

func (r *Registry) Summary() StatusSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := StatusSummary{
		ByStatus: map[Status]int{},
		ByType:   map[AgentType]int{},
	}
	for _, info := range r.agents {
		s.TotalAgents++
		s.ByStatus[info.Status]++
		s.ByType[info.Type]++
		s.TotalLoad += info.CurrentLoad
		s.TotalSlots += info.MaxLoad
	}
	return s
}
