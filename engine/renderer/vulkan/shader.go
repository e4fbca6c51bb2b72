package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
)

const spirvMagic = 0x07230203

// spirvWords reinterprets a little endian SPIR-V binary as 32-bit words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V binary of %d bytes is not a whole number of words", len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, fmt.Errorf("missing SPIR-V magic number")
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// shaderModuleInfo describes a module over code. CodeSize counts bytes.
func shaderModuleInfo(code []byte) (vk.ShaderModuleCreateInfo, error) {
	words, err := spirvWords(code)
	if err != nil {
		return vk.ShaderModuleCreateInfo{}, err
	}
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}, nil
}

func (d *Device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	createInfo, err := shaderModuleInfo(code)
	if err != nil {
		return nil, err
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(d.handle, &createInfo, nil, &module)); err != nil {
		return nil, err
	}
	return module, nil
}

func shaderStage(stage vk.ShaderStageFlagBits, module vk.ShaderModule) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module,
		PName:  safeString("main"),
	}
}
