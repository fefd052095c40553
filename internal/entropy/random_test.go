package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamIsReproducible(t *testing.T) {
	src := NewSource(42)

	a := src.Stream(10, 7)
	b := src.Stream(10, 7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestStreamsDifferByKey(t *testing.T) {
	src := NewSource(42)
	assert.NotEqual(t, src.Float(10, 1), src.Float(10, 2))
	assert.NotEqual(t, src.Float(10, 1), src.Float(11, 1))
	assert.NotEqual(t, NewSource(1).Float(10, 1), NewSource(2).Float(10, 1))
}

func TestFloatRange(t *testing.T) {
	src := NewSource(7)
	for tick := uint64(0); tick < 200; tick++ {
		f := src.Float(tick, tick*3)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}
