package vulkan

import (
	vk "github.com/goki/vulkan"
)

func newFence(dev vk.Device) (vk.Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(dev, &createInfo, nil, &fence)); err != nil {
		return nil, err
	}
	return fence, nil
}

// fenceSignaled polls a fence. Device loss is reported as an error, any
// other non-success result as not signaled yet.
func fenceSignaled(dev vk.Device, fence vk.Fence) (bool, error) {
	switch res := vk.GetFenceStatus(dev, fence); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("vkGetFenceStatus", res)
	}
}

func waitFence(dev vk.Device, fence vk.Fence) error {
	return check("vkWaitForFences", vk.WaitForFences(dev, 1, []vk.Fence{fence}, vk.True, fenceTimeout))
}

func resetFence(dev vk.Device, fence vk.Fence) error {
	return check("vkResetFences", vk.ResetFences(dev, 1, []vk.Fence{fence}))
}
