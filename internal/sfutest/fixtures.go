package sfutest

import (
	"github.com/google/uuid"

	"github.com/streamcast/streamcast/internal/protocol"
)

// DefaultCapabilities is the router capability set the test server offers.
func DefaultCapabilities() protocol.RTPCapabilities {
	return protocol.RTPCapabilities{
		Codecs: []protocol.RTPCodecCapability{
			{
				Kind:                 "audio",
				MimeType:             "audio/opus",
				PreferredPayloadType: 100,
				ClockRate:            48000,
				Channels:             2,
			},
			{
				Kind:                 "video",
				MimeType:             "video/VP8",
				PreferredPayloadType: 101,
				ClockRate:            90000,
			},
		},
	}
}

func newTransportOptions() protocol.TransportOptions {
	return protocol.TransportOptions{
		ID: uuid.NewString(),
		ICEParameters: protocol.ICEParameters{
			UsernameFragment: uuid.NewString()[:8],
			Password:         uuid.NewString(),
			ICELite:          true,
		},
		ICECandidates: []protocol.ICECandidate{
			{
				Foundation: "udpcandidate",
				Priority:   1076558079,
				IP:         "127.0.0.1",
				Protocol:   "udp",
				Port:       40000,
				Type:       "host",
			},
		},
		DTLSParameters: protocol.DTLSParameters{
			Role: "server",
			Fingerprints: []protocol.DTLSFingerprint{
				{Algorithm: "sha-256", Value: "DE:AD:BE:EF:00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44:55:66:77:88:99:AA:BB"},
			},
		},
	}
}

func parametersFor(kind string) protocol.RTPParameters {
	if kind == "audio" {
		return protocol.RTPParameters{
			Codecs: []protocol.RTPCodecParameters{
				{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2},
			},
			Encodings: []protocol.RTPEncoding{{SSRC: 1111}},
		}
	}
	return protocol.RTPParameters{
		Codecs: []protocol.RTPCodecParameters{
			{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000},
		},
		Encodings: []protocol.RTPEncoding{{SSRC: 2222}},
	}
}
