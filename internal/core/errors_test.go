package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapOutermostKindWins(t *testing.T) {
	inner := Wrap(ErrSignaling, "connectProducerTransport", ErrTimeout)
	outer := Wrap(ErrTransport, "connect send transport", inner)

	assert.Equal(t, ErrTransport, KindOf(outer))
	assert.True(t, errors.Is(outer, ErrTimeout))
	assert.Equal(t, ErrSignaling, KindOf(errors.Unwrap(outer)))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, ErrKind(0), KindOf(errors.New("plain")))
	assert.Equal(t, ErrKind(0), KindOf(nil))
}

func TestErrorString(t *testing.T) {
	err := Errorf(ErrConsume, "consume p1", "no codecs offered")
	assert.Equal(t, "consume: consume p1: no codecs offered", err.Error())

	bare := &Error{Kind: ErrProduce, Op: "produce"}
	assert.Equal(t, "produce: produce", bare.Error())
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "signaling", ErrSignaling.String())
	assert.Equal(t, "negotiation", ErrNegotiation.String())
	assert.Equal(t, "transport", ErrTransport.String())
	assert.Equal(t, "produce", ErrProduce.String())
	assert.Equal(t, "consume", ErrConsume.String())
	assert.Equal(t, "unknown", ErrKind(99).String())
}
