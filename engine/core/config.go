package core

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// MaxFramesInFlight bounds the per-slot arrays of every resource.
const MaxFramesInFlight = 3

// DescriptorPoolConfig sizes each descriptor pool of the binding table materializer.
type DescriptorPoolConfig struct {
	MaxSets               uint32 `toml:"max_sets"`
	UniformBuffers        uint32 `toml:"uniform_buffers"`
	CombinedImageSamplers uint32 `toml:"combined_image_samplers"`
}

type VulkanConfig struct {
	AppName    string `toml:"app_name"`
	Validation bool   `toml:"validation"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Config struct {
	FramesInFlight      int                  `toml:"frames_in_flight"`
	LogLevel            string               `toml:"log_level"`
	MaxPendingReadbacks int                  `toml:"max_pending_readbacks"`
	ShaderDir           string               `toml:"shader_dir"`
	DescriptorPool      DescriptorPoolConfig `toml:"descriptor_pool"`
	Vulkan              VulkanConfig         `toml:"vulkan"`
	Window              WindowConfig         `toml:"window"`
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight:      2,
		LogLevel:            "info",
		MaxPendingReadbacks: 64,
		ShaderDir:           "assets/shaders",
		DescriptorPool: DescriptorPoolConfig{
			MaxSets:               128,
			UniformBuffers:        256,
			CombinedImageSamplers: 256,
		},
		Vulkan: VulkanConfig{
			AppName: "qvk6",
		},
		Window: WindowConfig{
			Title:  "qvk6",
			Width:  1280,
			Height: 720,
		},
	}
}

// ParseConfig decodes TOML on top of DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func (c Config) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: frames_in_flight must be in 1..%d, got %d", ErrInvalidConfig, MaxFramesInFlight, c.FramesInFlight)
	}
	if c.DescriptorPool.MaxSets == 0 {
		return fmt.Errorf("%w: descriptor_pool.max_sets must be positive", ErrInvalidConfig)
	}
	if c.DescriptorPool.UniformBuffers == 0 || c.DescriptorPool.CombinedImageSamplers == 0 {
		return fmt.Errorf("%w: descriptor_pool binding capacities must be positive", ErrInvalidConfig)
	}
	if c.MaxPendingReadbacks < 1 {
		return fmt.Errorf("%w: max_pending_readbacks must be positive", ErrInvalidConfig)
	}
	return nil
}
