package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

func TestReadBufferSync(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 16)
	require.NoError(t, buf.Update(4, []byte{9, 8, 7, 6}))

	data, err := r.ReadBufferSync(buf, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7, 6}, data)

	data, err = r.ReadBufferSync(buf, 0, 0)
	require.NoError(t, err)
	assert.Len(t, data, 16)
}

func TestReadDynamicBufferBeforeAnyFrame(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	sc, _ := newTestSwapChain(t, r, 64, 64)
	buf := newUniformBuffer(t, r, metadata.BufferTypeDynamic, 8)
	require.NoError(t, buf.Update(0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	data, err := r.ReadBufferSync(buf, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6}, data)

	// After a frame applied the update the copy of that frame is read.
	emptyFrame(t, r, sc)
	require.NoError(t, r.BeginFrame(sc))
	require.NoError(t, r.ReadBuffer(buf, 0, 0, func([]byte, error) {}))
	require.NoError(t, r.EndFrame(sc))
	data, err = r.ReadBufferSync(buf, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	require.NoError(t, buf.Update(0, []byte{9, 9}))
	data, err = r.ReadBufferSync(buf, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 3, 4}, data)
}

func TestReadBufferCompletesWithItsFrame(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	sc, _ := newTestSwapChain(t, r, 64, 64)
	buf := newUniformBuffer(t, r, metadata.BufferTypeDynamic, 8)

	var got []byte
	calls := 0
	require.NoError(t, r.BeginFrame(sc))
	require.NoError(t, buf.Update(0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, r.ReadBuffer(buf, 2, 4, func(b []byte, err error) {
		require.NoError(t, err)
		got = b
		calls++
	}))
	require.NoError(t, r.EndFrame(sc))
	assert.Equal(t, 1, r.PendingReadbacks())

	// The next frame uses the other slot, so frame 1 is not yet known complete.
	emptyFrame(t, r, sc)
	assert.Zero(t, calls)

	require.NoError(t, r.BeginFrame(sc))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []byte{3, 4, 5, 6}, got)
	assert.Zero(t, r.PendingReadbacks())
	require.NoError(t, r.EndFrame(sc))
}

func TestReadBufferOfReleasedBuffer(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 4)
	require.NoError(t, buf.Update(0, []byte{1, 2, 3, 4}))

	var got []byte
	require.NoError(t, r.ReadBuffer(buf, 0, 4, func(b []byte, err error) { got = b }))
	require.NoError(t, buf.Release())
	require.NoError(t, r.Finish())
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestReadBufferLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPendingReadbacks = 1
	r, _ := newTestRenderer(t, cfg)
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 16)
	noop := func([]byte, error) {}

	assert.ErrorIs(t, r.ReadBuffer(buf, 16, 1, noop), core.ErrResourceLimit)
	assert.ErrorIs(t, r.ReadBuffer(buf, 8, 16, noop), core.ErrResourceLimit)
	require.NoError(t, r.ReadBuffer(buf, 0, 4, noop))
	assert.ErrorIs(t, r.ReadBuffer(buf, 0, 4, noop), core.ErrResourceLimit)

	unbuilt := r.NewBuffer(metadata.BufferConfig{Name: "unbuilt", Size: 4})
	assert.ErrorIs(t, r.ReadBuffer(unbuilt, 0, 4, noop), core.ErrNotBuilt)
}

func TestPendingReadbacksFailOnTeardown(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	sc, _ := newTestSwapChain(t, r, 64, 64)
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 4)

	var readErr error
	require.NoError(t, r.BeginFrame(sc))
	require.NoError(t, r.ReadBuffer(buf, 0, 4, func(b []byte, err error) { readErr = err }))
	require.NoError(t, r.EndFrame(sc))
	dev.LoseDevice()

	require.NoError(t, r.Destroy())
	assert.ErrorIs(t, readErr, core.ErrDeviceLost)
}
