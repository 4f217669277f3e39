package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/null"
)

func TestMaterializeWritesOnceThenReuses(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	buf := newUniformBuffer(t, r, metadata.BufferTypeDynamic, 68)
	table := r.NewBindingTable("srb", UniformBufferBinding(0, metadata.ShaderStageVertex|metadata.ShaderStageFragment, buf, 0, 68))
	require.NoError(t, table.Build())

	n, err := table.Materialize(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, dev.Stats().DescriptorWrites)

	n, err = table.Materialize(0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, dev.Stats().DescriptorWrites)

	w, ok := dev.DescriptorSetWrite(table.NativeSet(0), 0)
	require.True(t, ok)
	assert.Equal(t, buf.Native(0), w.Buffer)
	assert.Equal(t, uint64(68), w.Range)

	// Slot 1 has its own set, pointing at the buffer's slot 1 copy.
	n, err = table.Materialize(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	w, ok = dev.DescriptorSetWrite(table.NativeSet(1), 0)
	require.True(t, ok)
	assert.Equal(t, buf.Native(1), w.Buffer)
	assert.NotEqual(t, table.NativeSet(0), table.NativeSet(1))
}

func TestRebuiltTextureRewritesEveryTable(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	tex, sampler := newSampledTexture(t, r, "rt")
	ubuf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 256)
	tables := []*BindingTable{
		r.NewBindingTable("a", SampledTextureBinding(0, metadata.ShaderStageFragment, tex, sampler)),
		r.NewBindingTable("b",
			UniformBufferBinding(0, metadata.ShaderStageVertex, ubuf, 0, 0),
			SampledTextureBinding(1, metadata.ShaderStageFragment, tex, sampler)),
	}
	for _, tbl := range tables {
		require.NoError(t, tbl.Build())
		_, err := tbl.Materialize(0)
		require.NoError(t, err)
	}

	old := tex.Native()
	require.NoError(t, tex.Resize(128, 128))
	assert.Equal(t, uint32(2), tex.Generation())
	assert.NotEqual(t, old, tex.Native())

	for _, tbl := range tables {
		n, err := tbl.Materialize(0)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", tbl.Name())
		binding := tbl.Bindings()[len(tbl.Bindings())-1].Binding
		w, ok := dev.DescriptorSetWrite(tbl.NativeSet(0), binding)
		require.True(t, ok)
		assert.Equal(t, tex.Native(), w.Image)
	}

	// A rebuilt sampler alone is enough to invalidate the texture binding.
	require.NoError(t, sampler.Build())
	n, err := tables[1].Materialize(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMaterializeRejectsUnbuiltReferences(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 256)
	table := r.NewBindingTable("srb", UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 0))
	require.NoError(t, table.Build())

	require.NoError(t, buf.Release())
	_, err := table.Materialize(0)
	assert.ErrorIs(t, err, core.ErrNotBuilt)

	_, err = table.Materialize(core.MaxFramesInFlight)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestMaterializeRefusesInFlightSlot(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig(), null.WithManualCompletion())
	s := newDrawSetup(t, r)
	s.drawFrame(t, r)
	writes := dev.Stats().DescriptorWrites

	require.NoError(t, s.ubuf.Build())
	_, err := s.table.Materialize(0)
	assert.ErrorIs(t, err, core.ErrResourceInUse)
	assert.Equal(t, writes, dev.Stats().DescriptorWrites)

	// Slot 1 never ran a frame, so its set is free to write.
	n, err := s.table.Materialize(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dev.CompleteAll()
	require.NoError(t, r.Finish())
	n, err = s.table.Materialize(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	w, ok := dev.DescriptorSetWrite(s.table.NativeSet(0), 0)
	require.True(t, ok)
	assert.Equal(t, s.ubuf.Native(0), w.Buffer)
	requireNoMisuse(t, dev)
}

func TestBindingTableValidation(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	ubuf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 512)
	vbuf := r.NewBuffer(metadata.BufferConfig{Name: "vbuf", Usage: metadata.BufferUsageVertex, Size: 64})
	require.NoError(t, vbuf.Build())
	tex, sampler := newSampledTexture(t, r, "tex")

	cases := map[string][]Binding{
		"duplicate binding": {
			UniformBufferBinding(0, metadata.ShaderStageVertex, ubuf, 0, 0),
			SampledTextureBinding(0, metadata.ShaderStageFragment, tex, sampler),
		},
		"no stage":         {UniformBufferBinding(0, 0, ubuf, 0, 0)},
		"not uniform":      {UniformBufferBinding(0, metadata.ShaderStageVertex, vbuf, 0, 0)},
		"unaligned offset": {UniformBufferBinding(0, metadata.ShaderStageVertex, ubuf, 16, 64)},
		"missing sampler":  {SampledTextureBinding(0, metadata.ShaderStageFragment, tex, nil)},
		"missing buffer":   {UniformBufferBinding(0, metadata.ShaderStageVertex, nil, 0, 0)},
	}
	for name, bindings := range cases {
		t.Run(name, func(t *testing.T) {
			table := r.NewBindingTable(name, bindings...)
			assert.ErrorIs(t, table.Build(), core.ErrInvalidBinding)
			assert.Zero(t, table.Generation())
		})
	}

	over := r.NewBindingTable("range", UniformBufferBinding(0, metadata.ShaderStageVertex, ubuf, 256, 512))
	require.NoError(t, over.Build())
	_, err := over.Materialize(0)
	assert.ErrorIs(t, err, core.ErrResourceLimit)
}

func TestDescriptorPoolsGrowAndNeverShrink(t *testing.T) {
	cfg := testConfig()
	cfg.DescriptorPool.MaxSets = 2
	r, dev := newTestRenderer(t, cfg)
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 256)

	var tables []*BindingTable
	counts := []int{}
	for i := 0; i < 5; i++ {
		tbl := r.NewBindingTable("srb", UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 0))
		require.NoError(t, tbl.Build())
		_, err := tbl.Materialize(0)
		require.NoError(t, err)
		tables = append(tables, tbl)
		counts = append(counts, r.DescriptorPoolCount())
	}
	assert.Equal(t, []int{1, 1, 2, 2, 3}, counts)

	for _, tbl := range tables {
		require.NoError(t, tbl.Release())
	}
	require.NoError(t, r.Finish())
	assert.Equal(t, 3, r.DescriptorPoolCount())
	assert.Equal(t, 5, dev.Stats().DescriptorSetsFreed)
	assert.Zero(t, dev.Stats().DescriptorPoolsDestroyed)

	// Freed room in the first pool is reused before anything new is created.
	tbl := r.NewBindingTable("again", UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 0))
	require.NoError(t, tbl.Build())
	_, err := tbl.Materialize(0)
	require.NoError(t, err)
	assert.Equal(t, 3, r.DescriptorPoolCount())
	assert.Equal(t, 0, tbl.slots[0].set.pool)
}

func TestDescriptorPoolCapacityLimit(t *testing.T) {
	cfg := testConfig()
	cfg.DescriptorPool.UniformBuffers = 1
	r, _ := newTestRenderer(t, cfg)
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 512)
	tbl := r.NewBindingTable("wide",
		UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 256),
		UniformBufferBinding(1, metadata.ShaderStageVertex, buf, 256, 256))
	require.NoError(t, tbl.Build())
	_, err := tbl.Materialize(0)
	assert.ErrorIs(t, err, core.ErrResourceLimit)
	assert.Zero(t, r.DescriptorPoolCount())
}

func TestLayoutCompatibility(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 256)
	tex, sampler := newSampledTexture(t, r, "tex")
	build := func(bindings ...Binding) *BindingTable {
		tbl := r.NewBindingTable("srb", bindings...)
		require.NoError(t, tbl.Build())
		return tbl
	}
	a := build(UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 0))
	same := build(UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 64))
	stages := build(UniformBufferBinding(0, metadata.ShaderStageFragment, buf, 0, 0))
	typ := build(SampledTextureBinding(0, metadata.ShaderStageVertex, tex, sampler))
	index := build(UniformBufferBinding(1, metadata.ShaderStageVertex, buf, 0, 0))
	count := build(
		UniformBufferBinding(0, metadata.ShaderStageVertex, buf, 0, 0),
		SampledTextureBinding(1, metadata.ShaderStageFragment, tex, sampler))

	assert.True(t, a.IsLayoutCompatible(same.Layout()))
	for _, other := range []*BindingTable{stages, typ, index, count} {
		assert.False(t, a.IsLayoutCompatible(other.Layout()))
	}
}
