package domain

// RemoteProducer describes a publisher visible in the room. It is a cache
// of server state; a producer-list push makes any held copy stale.
type RemoteProducer struct {
	Owner      ParticipantID
	ProducerID string
	Kind       MediaKind
}
