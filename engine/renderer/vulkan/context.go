// Package vulkan implements the native device on top of goki/vulkan.
// Buffers get synthetic GPU virtual addresses, descriptor heaps are bindless
// descriptor sets and fence values are emulated with one vk.Fence per signal.
package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/core"
)

const engineName = "benzin"

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

type Options struct {
	ApplicationName string
	// Validation enables the Khronos validation layer when it is installed.
	Validation bool
	// PhysicalDevice picks a device by enumeration index. Negative picks the
	// first discrete GPU, or the first device when there is none.
	PhysicalDevice int
}

type queueFamilies struct {
	graphics uint32
	compute  uint32
	transfer uint32
}

// Context holds the instance and the physical device the logical device is
// created on.
type Context struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	Properties     vk.PhysicalDeviceProperties
	Limits         vk.PhysicalDeviceLimits
	Memory         vk.PhysicalDeviceMemoryProperties
	Name           string

	families queueFamilies
}

func newContext(opts Options, logger *core.Logger) (*Context, error) {
	vk.SetDefaultGetInstanceProcAddr()
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize the vulkan loader: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(opts.ApplicationName),
		PEngineName:        safeString(engineName),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if opts.Validation {
		if layers := availableLayers(validationLayers, logger); len(layers) > 0 {
			createInfo.EnabledLayerCount = uint32(len(layers))
			createInfo.PpEnabledLayerNames = safeStrings(layers)
		}
	}

	c := &Context{}
	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &c.Instance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(c.Instance); err != nil {
		vk.DestroyInstance(c.Instance, nil)
		return nil, err
	}

	if err := c.selectPhysicalDevice(opts.PhysicalDevice, logger); err != nil {
		vk.DestroyInstance(c.Instance, nil)
		return nil, err
	}
	return c, nil
}

// availableLayers returns the wanted layers the loader knows about.
func availableLayers(wanted []string, logger *core.Logger) []string {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success || count == 0 {
		logger.Warn("no instance layers available, validation disabled")
		return nil
	}
	props := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, props); res != vk.Success {
		return nil
	}

	present := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		present[vk.ToString(props[i].LayerName[:])] = true
	}

	var layers []string
	for _, name := range wanted {
		if !present[name] {
			logger.Warn("validation layer is missing", "layer", name)
			continue
		}
		layers = append(layers, name)
	}
	return layers
}

func (c *Context) selectPhysicalDevice(index int, logger *core.Logger) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(c.Instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(c.Instance, &count, devices)); err != nil {
		return err
	}

	if index >= int(count) {
		return fmt.Errorf("physical device %d requested, %d available", index, count)
	}
	if index < 0 {
		index = 0
		for i, dev := range devices {
			var props vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(dev, &props)
			props.Deref()
			if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
				index = i
				break
			}
		}
	}

	c.PhysicalDevice = devices[index]
	vk.GetPhysicalDeviceProperties(c.PhysicalDevice, &c.Properties)
	c.Properties.Deref()
	c.Limits = c.Properties.Limits
	c.Limits.Deref()
	vk.GetPhysicalDeviceMemoryProperties(c.PhysicalDevice, &c.Memory)
	c.Memory.Deref()
	c.Name = vk.ToString(c.Properties.DeviceName[:])

	families, err := findQueueFamilies(c.PhysicalDevice)
	if err != nil {
		return fmt.Errorf("device %q: %w", c.Name, err)
	}
	c.families = families

	logger.Info("physical device selected",
		"name", c.Name,
		"type", deviceTypeString(c.Properties.DeviceType),
		"graphics_family", families.graphics,
		"compute_family", families.compute,
		"transfer_family", families.transfer)
	return nil
}

func deviceTypeString(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "other"
}

// findQueueFamilies picks the family with the fewest other capabilities for
// compute and transfer work, which favors dedicated async queues. Both fall
// back to the graphics family.
func findQueueFamilies(device vk.PhysicalDevice) (queueFamilies, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	const none = ^uint32(0)
	f := queueFamilies{graphics: none, compute: none, transfer: none}
	computeScore, transferScore := 255, 255
	for i := range props {
		props[i].Deref()
		flags := props[i].QueueFlags
		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		compute := flags&vk.QueueFlags(vk.QueueComputeBit) != 0
		transfer := flags&vk.QueueFlags(vk.QueueTransferBit) != 0

		score := 0
		if graphics {
			score++
			if f.graphics == none && compute {
				f.graphics = uint32(i)
			}
		}
		if compute {
			if score < computeScore {
				computeScore = score
				f.compute = uint32(i)
			}
			score++
		}
		// Graphics and compute families support transfers implicitly.
		if transfer || graphics || compute {
			if score < transferScore {
				transferScore = score
				f.transfer = uint32(i)
			}
		}
	}

	if f.graphics == none {
		return f, fmt.Errorf("no queue family supports both graphics and compute")
	}
	if f.compute == none {
		f.compute = f.graphics
	}
	if f.transfer == none {
		f.transfer = f.graphics
	}
	return f, nil
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every property in flags.
func (c *Context) findMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < c.Memory.MemoryTypeCount; i++ {
		c.Memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && c.Memory.MemoryTypes[i].PropertyFlags&flags == flags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches filter %#x with properties %#x", typeFilter, flags)
}

func (c *Context) destroy() {
	if c.Instance != nil {
		vk.DestroyInstance(c.Instance, nil)
		c.Instance = nil
	}
}
