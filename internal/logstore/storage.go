package logstore

import (
	"log/slog"
	"sync"

	"github.com/boki-faas/boki/internal/fatal"
	"github.com/boki-faas/boki/internal/lockable"
	"github.com/boki-faas/boki/internal/logstore/kv"
	"github.com/boki-faas/boki/internal/wire"
)

// RespondFunc sends a response message (READ_OK/DATA_LOST) back on
// the connection a request arrived on.
type RespondFunc func(header wire.SharedLogHeader, payload []byte)

type parkedMessage struct {
	header  wire.SharedLogHeader
	payload []byte
	respond RespondFunc
}

// StorageCollection is the storage node's top-level state: the
// current view, the map of per-logspace LockablePtrs, and the
// future-request holding area for messages that outrun view
// installation.
type StorageCollection struct {
	selfID  wire.NodeID
	backend kv.Backend

	viewMu sync.RWMutex
	view   *View

	lsMu      sync.RWMutex
	logspaces map[wire.LogspaceID]*lockable.Ptr[LogSpace]

	parkMu sync.Mutex
	future map[uint16][]parkedMessage
}

// NewStorageCollection creates an empty collection for a storage node
// identified by selfID, persisting to backend.
func NewStorageCollection(selfID wire.NodeID, backend kv.Backend) *StorageCollection {
	return &StorageCollection{
		selfID:    selfID,
		backend:   backend,
		logspaces: make(map[wire.LogspaceID]*lockable.Ptr[LogSpace]),
		future:    make(map[uint16][]parkedMessage),
	}
}

// CurrentView returns the installed view, or nil if none has been
// installed yet.
func (sc *StorageCollection) CurrentView() *View {
	sc.viewMu.RLock()
	defer sc.viewMu.RUnlock()
	return sc.view
}

// OnViewCreated installs view as current. If this node is a storage
// member, a fresh LogSpace is installed for each sequencer in the
// view, and any messages parked for this view id are replayed in
// their original arrival order.
func (sc *StorageCollection) OnViewCreated(view View) {
	sc.viewMu.Lock()
	if sc.view != nil && view.ID < sc.view.ID {
		sc.viewMu.Unlock()
		slog.Error("logstore: view regression rejected", "current", sc.view.ID, "incoming", view.ID)
		return
	}
	sc.view = &view
	sc.viewMu.Unlock()

	if view.HasStorageMember(sc.selfID) {
		for _, id := range logspaceIDsForView(view) {
			if err := sc.backend.InstallLogSpace(uint32(id)); err != nil {
				slog.Error("logstore: install logspace failed", "logspace", id, "err", err)
				continue
			}
			sc.lsMu.Lock()
			sc.logspaces[id] = lockable.New(NewLogSpace(id, sc.backend))
			sc.lsMu.Unlock()
		}
	}

	sc.replayParked(view.ID)
}

// OnViewFinalized applies the sequencer-declared terminal metalog
// position to every logspace the finalized view owned, tails their
// metalogs, and seals them against further REPLICATEs.
func (sc *StorageCollection) OnViewFinalized(fv FinalizedView) {
	for _, id := range logspaceIDsForView(fv.View) {
		ptr, ok := sc.getLogSpace(id)
		if !ok {
			continue
		}
		guard := ptr.Lock()
		ls := guard.Get()
		if position, ok := fv.FinalMetalogPosition[id]; ok {
			if err := ls.ApplyMetalogs(MetalogBatch{Position: position}); err != nil {
				slog.Error("logstore: finalize metalog flush failed", "logspace", id, "err", err)
			}
		}
		ls.Seal()
		guard.Unlock()
	}
}

func (sc *StorageCollection) getLogSpace(id wire.LogspaceID) (*lockable.Ptr[LogSpace], bool) {
	sc.lsMu.RLock()
	defer sc.lsMu.RUnlock()
	ptr, ok := sc.logspaces[id]
	return ptr, ok
}

func (sc *StorageCollection) replayParked(viewID uint16) {
	sc.parkMu.Lock()
	msgs := sc.future[viewID]
	delete(sc.future, viewID)
	sc.parkMu.Unlock()
	for _, m := range msgs {
		sc.Dispatch(m.header, m.payload, m.respond)
	}
}

func (sc *StorageCollection) park(header wire.SharedLogHeader, payload []byte, respond RespondFunc) {
	sc.parkMu.Lock()
	defer sc.parkMu.Unlock()
	sc.future[header.ViewID] = append(sc.future[header.ViewID], parkedMessage{header: header, payload: payload, respond: respond})
}

// Dispatch runs the view-admission guard against header and, once
// admitted, routes to the REPLICATE/READ-AT/METALOGS handler matching
// header.OpType.
func (sc *StorageCollection) Dispatch(header wire.SharedLogHeader, payload []byte, respond RespondFunc) {
	sc.viewMu.RLock()
	cv := sc.view
	sc.viewMu.RUnlock()

	if cv == nil || header.ViewID > cv.ID {
		sc.park(header, payload, respond)
		return
	}
	if header.ViewID < cv.ID {
		slog.Warn("logstore: dropping message for stale view", "msg_view", header.ViewID, "current_view", cv.ID, "op", header.OpType)
		return
	}

	ptr, ok := sc.getLogSpace(header.LogspaceID)
	if !ok {
		slog.Warn("logstore: dropping message for unowned logspace", "logspace", header.LogspaceID, "op", header.OpType)
		return
	}
	guard := ptr.Lock()
	defer guard.Unlock()
	ls := guard.Get()

	switch header.OpType {
	case wire.Replicate:
		sc.handleReplicate(ls, header, payload)
	case wire.ReadAt:
		sc.handleReadAt(ls, header, respond)
	case wire.Metalogs:
		sc.handleMetalogs(ls, header, payload)
	default:
		slog.Warn("logstore: unexpected op type on storage dispatch", "op", header.OpType)
	}
}

func (sc *StorageCollection) handleReplicate(ls *LogSpace, header wire.SharedLogHeader, payload []byte) {
	meta := LogMetaData{
		SeqNum:       header.SeqNum,
		UserLogspace: header.UserLogspace,
		UserTag:      header.UserTag,
		ClientData:   header.ClientData,
	}
	if err := ls.Store(meta, payload); err != nil {
		slog.Warn("logstore: replicate rejected", "logspace", header.LogspaceID, "seqnum", header.SeqNum, "err", err)
	}
}

func (sc *StorageCollection) handleReadAt(ls *LogSpace, header wire.SharedLogHeader, respond RespondFunc) {
	ls.ReadAt(header.SeqNum, func(result ReadResult) {
		resp := header
		resp.PayloadSize = uint32(len(result.Payload))
		if result.Outcome == ReadOK {
			resp.OpType = wire.ReadOK
			respond(resp, result.Payload)
			return
		}
		resp.OpType = wire.DataLost
		resp.PayloadSize = 0
		respond(resp, nil)
	})
}

func (sc *StorageCollection) handleMetalogs(ls *LogSpace, header wire.SharedLogHeader, payload []byte) {
	batch, err := DecodeMetalogBatch(payload)
	if err != nil {
		slog.Warn("logstore: malformed metalogs payload", "logspace", header.LogspaceID, "err", err)
		return
	}
	if err := ls.ApplyMetalogs(batch); err != nil {
		fatal.Abortf("logstore: metalog flush failed for logspace %v: %v", header.LogspaceID, err)
	}
}
