package trace

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion identifies the export format. Import rejects snapshots
// from a different version rather than guessing at their layout.
const SnapshotVersion = 1

// Snapshot is the portable export of a recorder's contents.
type Snapshot struct {
	Version    int     `json:"version"`
	Capacity   int     `json:"capacity"`
	Seq        uint64  `json:"seq"`
	ExportedAt int64   `json:"exportedAt"`
	Entries    []Entry `json:"entries"`
}

// Export captures the current contents, oldest entry first.
func (r *Recorder) Export() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Version:    SnapshotVersion,
		Capacity:   len(r.entries),
		Seq:        r.seq,
		ExportedAt: r.now().UnixMilli(),
		Entries:    r.entriesLocked(),
	}
}

// ExportJSON renders the snapshot as indented JSON.
func (r *Recorder) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r.Export(), "", "  ")
}

// Import reconstructs a recorder from a snapshot for offline inspection.
// The result is disabled: it answers queries but records nothing new until
// explicitly enabled.
func Import(snap Snapshot) (*Recorder, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Capacity < 1 {
		return nil, fmt.Errorf("snapshot capacity %d", snap.Capacity)
	}
	if len(snap.Entries) > snap.Capacity {
		return nil, fmt.Errorf("snapshot holds %d entries over capacity %d", len(snap.Entries), snap.Capacity)
	}
	r := New(WithCapacity(snap.Capacity))
	r.enabled = false
	r.seq = snap.Seq
	capacity := uint64(snap.Capacity)
	start := uint64(0)
	if snap.Seq > capacity {
		start = snap.Seq - capacity
	}
	for i, e := range snap.Entries {
		r.entries[(start+uint64(i))%capacity] = e
	}
	return r, nil
}

// ImportJSON decodes an exported snapshot and reconstructs its recorder.
func ImportJSON(data []byte) (*Recorder, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return Import(snap)
}
