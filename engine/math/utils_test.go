package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(10), Clamp(uint32(4), 10, 20))
	assert.Equal(t, uint32(20), Clamp(uint32(40), 10, 20))
	assert.Equal(t, 1.5, Clamp(1.5, 0, 2))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(uint64(68), 256))
	assert.Equal(t, uint64(256), AlignUp(uint64(256), 256))
	assert.Equal(t, uint64(0), AlignUp(uint64(0), 256))
	assert.Equal(t, uint64(7), AlignUp(uint64(7), 0))
	assert.True(t, IsAligned(uint64(512), 256))
	assert.False(t, IsAligned(uint64(68), 256))
	assert.Equal(t, 3, Max(2, 3))
}
