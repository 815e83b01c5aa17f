package protocol

// Request and response payloads for the events in envelope.go.

type CreateRoomRequest struct{}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomResponse answers createRoom and joinRoom. UserID is the participant
// identifier the server assigned to this connection.
type RoomResponse struct {
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId,omitempty"`
	Error  string `json:"error,omitempty"`
}

type RouterCapabilitiesRequest struct {
	RoomID string `json:"roomId"`
}

type RouterCapabilitiesResponse struct {
	RTPCapabilities RTPCapabilities `json:"rtpCapabilities"`
	Error           string          `json:"error,omitempty"`
}

type CreateTransportRequest struct {
	RoomID string `json:"roomId"`
}

// TransportOptions answers createProducerTransport and createConsumerTransport.
type TransportOptions struct {
	ID             string         `json:"id,omitempty"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
	Error          string         `json:"error,omitempty"`
}

type ConnectTransportRequest struct {
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
	RoomID         string         `json:"roomId"`
}

// Ack answers connectProducerTransport and connectConsumerTransport.
type Ack struct {
	Error string `json:"error,omitempty"`
}

type ProduceRequest struct {
	Kind          string        `json:"kind"`
	RTPParameters RTPParameters `json:"rtpParameters"`
	RoomID        string        `json:"roomId"`
}

type ProduceResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type ConsumeRequest struct {
	ProducerID      string          `json:"producerId"`
	RoomID          string          `json:"roomId"`
	RTPCapabilities RTPCapabilities `json:"rtpCapabilities"`
}

type ConsumeResponse struct {
	ID            string        `json:"id,omitempty"`
	ProducerID    string        `json:"producerId,omitempty"`
	Kind          string        `json:"kind,omitempty"`
	RTPParameters RTPParameters `json:"rtpParameters"`
	Error         string        `json:"error,omitempty"`
}

type ListProducersRequest struct {
	RoomID string `json:"roomId"`
}

type ProducerInfo struct {
	UserID     string `json:"userId"`
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
}

type ListProducersResponse struct {
	Producers []ProducerInfo `json:"producers"`
	Error     string         `json:"error,omitempty"`
}

type StopProducingRequest struct {
	RoomID string `json:"roomId"`
}

// ProducersChangedPush carries the full current producer list for the room.
type ProducersChangedPush struct {
	Producers []ProducerInfo `json:"producers"`
}
