package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripedIndexIsDeterministicPerProcess(t *testing.T) {
	sm := newStriped(32)

	a := sm.index("some-key")
	b := sm.index("some-key")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 32)
}

func TestStripeSetGetDel(t *testing.T) {
	var s stripe

	s.set("k", entry{value: "v"})
	v, ok := s.get("k", time.Now())
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	assert.True(t, s.del("k"))
	_, ok = s.get("k", time.Now())
	assert.False(t, ok)
}

func TestNewStripedPanicsBelowOne(t *testing.T) {
	assert.Panics(t, func() {
		newStriped(0)
	})
}
