package logstore

// ViewEvent is one notification from the coordination service: either
// a new view has been created, or the previously current view has
// been finalized.
type ViewEvent struct {
	Created   *View
	Finalized *FinalizedView
}

// ViewSource is the seam between this package and the external
// coordination service: view/membership state arrives as an opaque
// watch source; ZookeeperHost/ZookeeperRootPath on Config name where
// to find it. No ZooKeeper client exists in this codebase's
// dependency set, so production wiring of a ZooKeeper-backed
// ViewSource is left to deployment configuration rather than
// fabricated here.
type ViewSource interface {
	// Watch returns a channel of view change events. The channel is
	// closed when the source is done (e.g. context canceled).
	Watch() <-chan ViewEvent
	// Close releases resources held by the source.
	Close() error
}

// Watch drives sc from events produced by src until src's channel
// closes, applying each as OnViewCreated/OnViewFinalized in arrival
// order (the view-watcher is the sole writer of current_view).
func (sc *StorageCollection) Watch(src ViewSource) {
	for ev := range src.Watch() {
		if ev.Created != nil {
			sc.OnViewCreated(*ev.Created)
		}
		if ev.Finalized != nil {
			sc.OnViewFinalized(*ev.Finalized)
		}
	}
}
