package watch

// Fire scans the registry for every entry matching an absolute mutation
// at path, enqueues a pending event for each whose owner is not
// mutatingDomID, and wakes that owner's worker.
func Fire(registry *Registry, queue *PendingQueue, path string, mutatingDomID uint16, wake func(domID uint16)) {
	for _, e := range registry.MatchingForPath(path) {
		if e.OwnerDomID == mutatingDomID {
			continue
		}
		queue.Enqueue(PendingEvent{Path: path, TargetDomID: e.OwnerDomID})
		registry.log.Tracef("watch fired id=%s path=%s target=%d", e.ID, path, e.OwnerDomID)
		if wake != nil {
			wake(e.OwnerDomID)
		}
	}
}
