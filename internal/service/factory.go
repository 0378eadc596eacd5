package service

import "basegraph.app/boardroom/internal/store"

type Services struct {
	orchestrator Orchestrator
	cache        store.SnapshotCache
	archive      store.DiscussionArchive
}

// NewServices wires the service layer. cache and archive may be nil.
func NewServices(orchestrator Orchestrator, cache store.SnapshotCache, archive store.DiscussionArchive) *Services {
	return &Services{orchestrator: orchestrator, cache: cache, archive: archive}
}

func (s *Services) Collaboration() CollaborationService {
	var readers []DiscussionReader
	if s.cache != nil {
		readers = append(readers, s.cache)
	}
	if s.archive != nil {
		readers = append(readers, s.archive)
	}
	return NewCollaborationService(s.orchestrator, readers...)
}
