package procmeta

import (
	"sort"
	"sync"
)

// Manager tracks invocations that have started and not yet exited.
// It provides command-query separation for metadata access.
type Manager struct {
	mu            sync.RWMutex
	metadata      map[uint32]*ProcessMetadata // PID -> running invocation
	captureIssues map[uint32][]string         // PID -> list of anomalies
}

// NewManager creates a new process metadata manager.
func NewManager() *Manager {
	return &Manager{
		metadata:      make(map[uint32]*ProcessMetadata),
		captureIssues: make(map[uint32][]string),
	}
}

// Get retrieves metadata for a PID (query).
// Returns nil if no metadata exists for this PID.
func (m *Manager) Get(pid uint32) *ProcessMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[pid]
}

// Live returns the invocations still running, ordered by PID (query).
func (m *Manager) Live() []*ProcessMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := make([]*ProcessMetadata, 0, len(m.metadata))
	for _, md := range m.metadata {
		live = append(live, md)
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].Identity.PID < live[j].Identity.PID
	})
	return live
}

// Set stores metadata for a PID (command).
// It returns the metadata it replaced, which is non-nil only when a PID was
// reused before its previous owner reported an exit.
func (m *Manager) Set(pid uint32, metadata *ProcessMetadata) *ProcessMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.metadata[pid]
	m.metadata[pid] = metadata
	return previous
}

// AddIssue adds an anomaly for a PID (command).
func (m *Manager) AddIssue(pid uint32, issue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureIssues[pid] = append(m.captureIssues[pid], issue)
}

// Delete removes the running invocation for a PID (command) and reports
// whether one was present. Recorded issues are kept: they describe the
// session, not the process.
func (m *Manager) Delete(pid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.metadata[pid]
	delete(m.metadata, pid)
	return ok
}

// Issues returns every recorded anomaly keyed by PID (query).
func (m *Manager) Issues() map[uint32][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uint32][]string, len(m.captureIssues))
	for pid, issues := range m.captureIssues {
		out[pid] = append([]string(nil), issues...)
	}
	return out
}
