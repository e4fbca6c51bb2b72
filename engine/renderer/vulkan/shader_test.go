package vulkan

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpirvWords(t *testing.T) {
	code := make([]byte, 12)
	binary.LittleEndian.PutUint32(code[0:], spirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010500)
	binary.LittleEndian.PutUint32(code[8:], 42)

	words, err := spirvWords(code)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010500, 42}, words)
}

func TestSpirvWordsRejectsBadInput(t *testing.T) {
	_, err := spirvWords(nil)
	assert.Error(t, err)

	_, err = spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 0x00})
	assert.Error(t, err)

	_, err = spirvWords([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.ErrorContains(t, err, "magic")
}

func TestShaderModuleInfo(t *testing.T) {
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code, spirvMagic)

	info, err := shaderModuleInfo(code)
	require.NoError(t, err)
	assert.Equal(t, vk.StructureTypeShaderModuleCreateInfo, info.SType)
	assert.Equal(t, uint64(8), info.CodeSize)
	assert.Equal(t, []uint32{spirvMagic, 0}, info.PCode)

	_, err = shaderModuleInfo(code[:6])
	assert.Error(t, err)
}
