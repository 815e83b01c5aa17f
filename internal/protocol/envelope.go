// Package protocol defines the wire format spoken over the signaling channel.
package protocol

import "encoding/json"

// Envelope frames every signaling message. Requests carry a token; the
// matching response echoes it. Server pushes carry no token.
type Envelope struct {
	Type  string          `json:"type"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Request events (client -> server, one response each).
const (
	EventCreateRoom               = "createRoom"
	EventJoinRoom                 = "joinRoom"
	EventGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	EventCreateProducerTransport  = "createProducerTransport"
	EventCreateConsumerTransport  = "createConsumerTransport"
	EventConnectProducerTransport = "connectProducerTransport"
	EventConnectConsumerTransport = "connectConsumerTransport"
	EventProduce                  = "produce"
	EventConsume                  = "consume"
	EventListProducers            = "listProducers"
	EventStopProducing            = "stopProducing"
)

// Push events (server -> client, no response expected).
const (
	EventNewProducer          = "newProducer"
	EventRoomProducersChanged = "roomProducersChanged"
	EventDisconnect           = "disconnect"
	EventConnectError         = "connect_error"
	EventError                = "error"
)

func Encode(typ, token string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, Token: token}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = data
	return env, nil
}
