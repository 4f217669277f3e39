// Package shader holds compiled shader packages: per-stage code for every
// backend source kind plus the reflection data a pipeline needs to lay out
// its bindings. Packages are produced offline and treated as opaque input.
package shader

import (
	"sort"

	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

type VariableType int

const (
	VariableTypeUnknown VariableType = iota
	VariableTypeFloat
	VariableTypeVec2
	VariableTypeVec3
	VariableTypeVec4
	VariableTypeMat3
	VariableTypeMat4
	VariableTypeInt
	VariableTypeSampler2D
	VariableTypeSamplerCube
)

// Variable is a stage input or output.
type Variable struct {
	Name     string
	Location uint32
	Type     VariableType
}

type BlockMember struct {
	Name         string
	Type         VariableType
	Offset       uint32
	Size         uint32
	MatrixStride uint32
}

type UniformBlock struct {
	Name    string
	Binding uint32
	Set     uint32
	Size    uint32
	Members []BlockMember
}

type Sampler struct {
	Name    string
	Type    VariableType
	Binding uint32
	Set     uint32
}

type Reflection struct {
	Inputs        []Variable
	Outputs       []Variable
	UniformBlocks []UniformBlock
	Samplers      []Sampler
}

// Key selects one compiled form of the stage.
type Key struct {
	Source  metadata.ShaderSourceKind
	Version int
	Variant metadata.ShaderVariant
}

type Code struct {
	Bytes      []byte
	EntryPoint string
}

type Package struct {
	Stage      metadata.ShaderStage
	Reflection Reflection
	shaders    map[Key]Code
}

func New(stage metadata.ShaderStage, reflection Reflection) *Package {
	return &Package{Stage: stage, Reflection: reflection, shaders: make(map[Key]Code)}
}

func (p *Package) AddShader(k Key, c Code) {
	p.shaders[k] = c
}

// Keys returns every key in a stable order.
func (p *Package) Keys() []Key {
	keys := make([]Key, 0, len(p.shaders))
	for k := range p.shaders {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Variant < b.Variant
	})
	return keys
}

// Shader looks up code for a key. Version 0 matches the highest version of
// the source kind. A missing batchable variant falls back to the standard one.
func (p *Package) Shader(k Key) (Code, bool) {
	if c, ok := p.lookup(k); ok {
		return c, true
	}
	if k.Variant != metadata.ShaderVariantStandard {
		k.Variant = metadata.ShaderVariantStandard
		return p.lookup(k)
	}
	return Code{}, false
}

func (p *Package) lookup(k Key) (Code, bool) {
	if k.Version != 0 {
		c, ok := p.shaders[k]
		return c, ok
	}
	var (
		best  Code
		found bool
		ver   int
	)
	for key, c := range p.shaders {
		if key.Source == k.Source && key.Variant == k.Variant && (!found || key.Version > ver) {
			best, ver, found = c, key.Version, true
		}
	}
	return best, found
}

// HasSource reports whether any variant of the source kind is present.
func (p *Package) HasSource(kind metadata.ShaderSourceKind) bool {
	for k := range p.shaders {
		if k.Source == kind {
			return true
		}
	}
	return false
}
