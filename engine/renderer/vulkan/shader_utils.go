package vulkan

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// shaderStage is one compiled stage of a pass pipeline.
type shaderStage struct {
	module vk.ShaderModule
	info   vk.PipelineShaderStageCreateInfo
}

// shaderPath is where the SPIR-V of one stage of a pass lives, e.g.
// shaders/gbuffer.vert.spv.
func shaderPath(dir string, kind gpu.PassKind, stage string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.spv", kind, stage))
}

// repackUint32 turns little-endian SPIR-V bytes into the words Vulkan
// expects.
func repackUint32(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}

func (b *Backend) loadShaderStage(kind gpu.PassKind, stage string, flag vk.ShaderStageFlagBits) (shaderStage, error) {
	path := shaderPath(b.options.ShaderDir, kind, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		return shaderStage{}, fmt.Errorf("unable to read shader module: %w", err)
	}
	code, err := repackUint32(data)
	if err != nil {
		return shaderStage{}, fmt.Errorf("%s: %w", path, err)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(data)),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(b.device.LogicalDevice, &createInfo, nil, &module)); err != nil {
		return shaderStage{}, fmt.Errorf("%s: %w", path, err)
	}
	core.LogDebug("shader module loaded: %s", path)

	return shaderStage{
		module: module,
		info: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  flag,
			Module: module,
			PName:  VulkanSafeString("main"),
		},
	}, nil
}

// loadShaderStages loads the vertex and fragment stage of a pass. The
// modules are only needed until the pipeline is created.
func (b *Backend) loadShaderStages(kind gpu.PassKind) ([]shaderStage, error) {
	vert, err := b.loadShaderStage(kind, "vert", vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	frag, err := b.loadShaderStage(kind, "frag", vk.ShaderStageFragmentBit)
	if err != nil {
		vk.DestroyShaderModule(b.device.LogicalDevice, vert.module, nil)
		return nil, err
	}
	return []shaderStage{vert, frag}, nil
}

func (b *Backend) destroyShaderStages(stages []shaderStage) {
	for _, s := range stages {
		vk.DestroyShaderModule(b.device.LogicalDevice, s.module, nil)
	}
}
