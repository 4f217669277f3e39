//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"

	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/shader"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// triangle is the reflection of the demo shaders; it has to match the GLSL
// sources in assets/shaders.
var triangle = map[string]shader.Reflection{
	"triangle.vert": {
		Inputs: []shader.Variable{
			{Name: "position", Location: 0, Type: shader.VariableTypeVec2},
			{Name: "color", Location: 1, Type: shader.VariableTypeVec3},
		},
		Outputs:       []shader.Variable{{Name: "v_color", Location: 0, Type: shader.VariableTypeVec3}},
		UniformBlocks: []shader.UniformBlock{tintBlock},
	},
	"triangle.frag": {
		Inputs:        []shader.Variable{{Name: "v_color", Location: 0, Type: shader.VariableTypeVec3}},
		Outputs:       []shader.Variable{{Name: "frag_color", Location: 0, Type: shader.VariableTypeVec4}},
		UniformBlocks: []shader.UniformBlock{tintBlock},
	},
}

var tintBlock = shader.UniformBlock{
	Name:    "Tint",
	Binding: 0,
	Size:    16,
	Members: []shader.BlockMember{{Name: "tint", Type: shader.VariableTypeVec4, Offset: 0, Size: 16}},
}

// Compiles the GLSL sources to SPIR-V with glslc and packs them into shader packages.
func (Build) Shaders() error {
	if err := requireTool("glslc", "it ships with the Vulkan SDK and shaderc"); err != nil {
		return err
	}
	for name, reflection := range triangle {
		src := filepath.Join(shaderDir, name)
		spv := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", spv), withStream()); err != nil {
			return err
		}
		if err := packShader(name, spv, reflection); err != nil {
			return err
		}
	}
	return nil
}

func packShader(name, spv string, reflection shader.Reflection) error {
	code, err := os.ReadFile(spv)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", spv, err)
	}
	stage := metadata.ShaderStageTypeVertex
	if filepath.Ext(name) == ".frag" {
		stage = metadata.ShaderStageTypeFragment
	}
	pkg := shader.New(stage, reflection)
	pkg.AddShader(shader.Key{Source: metadata.ShaderSourceSPIRV, Version: 100}, shader.Code{Bytes: code, EntryPoint: "main"})
	data, err := shader.Encode(pkg)
	if err != nil {
		return err
	}
	out := filepath.Join(shaderDir, name+shader.Extension)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Packed %s\n", out)
	return os.Remove(spv)
}
