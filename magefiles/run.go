//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Renders a few frames of the testbed on the headless device.
func (Run) Headless() error {
	mg.Deps(Build.All)
	fmt.Println("Run testbed on the headless device...")
	if _, err := executeCmd("go", withArgs("run", ".", "-backend", "headless", "-frames", "120"), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders the testbed on the first Vulkan device, with validation layers.
func (Run) Vulkan() error {
	mg.Deps(Build.All)
	fmt.Println("Run testbed on Vulkan...")
	if _, err := executeCmd("go", withArgs("run", ".", "-backend", "vulkan", "-validation"), withStream()); err != nil {
		return err
	}
	return nil
}
