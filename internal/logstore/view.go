// Package logstore implements the storage node's per-view log
// storage and replication path: logspace lifecycle, the
// REPLICATE/READ-AT/METALOGS handlers, the future-request holding
// area, and the shard-progress background task.
package logstore

import "github.com/boki-faas/boki/internal/wire"

// View describes one membership epoch as published by the
// coordination service: which sequencer and storage nodes participate
// and at what view id.
type View struct {
	ID           uint16
	SequencerIDs []wire.NodeID
	StorageIDs   []wire.NodeID
	EngineIDs    []wire.NodeID
}

// HasStorageMember reports whether node is one of this view's storage
// members.
func (v View) HasStorageMember(node wire.NodeID) bool {
	for _, id := range v.StorageIDs {
		if id == node {
			return true
		}
	}
	return false
}

// FinalizedView is a View that has stopped accepting new replicates,
// carrying the sequencer-declared terminal metalog position for each
// logspace it owned.
type FinalizedView struct {
	View
	FinalMetalogPosition map[wire.LogspaceID]uint64
}

// logspaceIDsForView enumerates the logspace ids a storage member
// must install on view_created: one per sequencer in the view, at
// this view's id.
func logspaceIDsForView(v View) []wire.LogspaceID {
	ids := make([]wire.LogspaceID, len(v.SequencerIDs))
	for i, seq := range v.SequencerIDs {
		ids[i] = wire.NewLogspaceID(uint16(seq), v.ID)
	}
	return ids
}
