package shader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

func testPackage() *Package {
	p := New(metadata.ShaderStageTypeVertex, Reflection{
		Inputs:  []Variable{{Name: "position", Location: 0, Type: VariableTypeVec3}},
		Outputs: []Variable{{Name: "v_uv", Location: 0, Type: VariableTypeVec2}},
		UniformBlocks: []UniformBlock{{
			Name: "buf", Binding: 0, Size: 68,
			Members: []BlockMember{
				{Name: "mvp", Type: VariableTypeMat4, Offset: 0, Size: 64, MatrixStride: 16},
				{Name: "opacity", Type: VariableTypeFloat, Offset: 64, Size: 4},
			},
		}},
		Samplers: []Sampler{{Name: "tex", Type: VariableTypeSampler2D, Binding: 1}},
	})
	p.AddShader(Key{Source: metadata.ShaderSourceSPIRV, Version: 100}, Code{Bytes: []byte{3, 2, 35, 7}, EntryPoint: "main"})
	p.AddShader(Key{Source: metadata.ShaderSourceGLSL, Version: 310}, Code{Bytes: []byte("void main() {}"), EntryPoint: "main"})
	p.AddShader(Key{Source: metadata.ShaderSourceGLSL, Version: 440}, Code{Bytes: []byte("#version 440"), EntryPoint: "main"})
	return p
}

func TestEncodeDecode(t *testing.T) {
	p := testPackage()
	data, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p.Stage, got.Stage)
	assert.Equal(t, p.Reflection, got.Reflection)
	assert.Equal(t, p.Keys(), got.Keys())
	code, ok := got.Shader(Key{Source: metadata.ShaderSourceSPIRV, Version: 100})
	require.True(t, ok)
	assert.Equal(t, []byte{3, 2, 35, 7}, code.Bytes)
	assert.Equal(t, "main", code.EntryPoint)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPackage)

	data, err := Encode(testPackage())
	require.NoError(t, err)
	data[0] ^= 0xff
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	data, err = Encode(testPackage())
	require.NoError(t, err)
	_, err = Decode(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestShaderLookup(t *testing.T) {
	p := testPackage()

	code, ok := p.Shader(Key{Source: metadata.ShaderSourceGLSL})
	require.True(t, ok)
	assert.Equal(t, "#version 440", string(code.Bytes))

	code, ok = p.Shader(Key{Source: metadata.ShaderSourceGLSL, Version: 310, Variant: metadata.ShaderVariantBatchable})
	require.True(t, ok)
	assert.Equal(t, "void main() {}", string(code.Bytes))

	_, ok = p.Shader(Key{Source: metadata.ShaderSourceMSL})
	assert.False(t, ok)
	assert.True(t, p.HasSource(metadata.ShaderSourceSPIRV))
	assert.False(t, p.HasSource(metadata.ShaderSourceHLSL))
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	data, err := Encode(testPackage())
	require.NoError(t, err)
	initial := filepath.Join(dir, "initial.qsb")
	require.NoError(t, os.WriteFile(initial, data, 0o644))

	w, err := NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	p, ok := w.Package(initial)
	require.True(t, ok)
	assert.Equal(t, metadata.ShaderStageTypeVertex, p.Stage)

	frag := New(metadata.ShaderStageTypeFragment, Reflection{})
	frag.AddShader(Key{Source: metadata.ShaderSourceSPIRV, Version: 100}, Code{Bytes: []byte{1}, EntryPoint: "main"})
	data, err = Encode(frag)
	require.NoError(t, err)
	tmp := filepath.Join(dir, "color.frag.tmp")
	target := filepath.Join(dir, "color.frag.qsb")
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, target))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-w.Events():
			if e.Path != target || e.Package == nil {
				continue
			}
			assert.Equal(t, metadata.ShaderStageTypeFragment, e.Package.Stage)
			got, ok := w.Package(target)
			require.True(t, ok)
			assert.Same(t, e.Package, got)
			return
		case <-deadline:
			t.Fatal("no reload event for", target)
		}
	}
}
