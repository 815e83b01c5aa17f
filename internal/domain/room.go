package domain

import (
	"crypto/rand"
	"math/big"
)

type RoomID string

const channelIDLen = 8

var base36 = []byte("0123456789abcdefghijklmnopqrstuvwxyz")

// NewChannelID generates a shareable room identifier of the form "ch_xxxxxxxx".
func NewChannelID() RoomID {
	buf := make([]byte, channelIDLen)
	max := big.NewInt(int64(len(base36)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			buf[i] = base36[0]
			continue
		}
		buf[i] = base36[n.Int64()]
	}
	return RoomID("ch_" + string(buf))
}
