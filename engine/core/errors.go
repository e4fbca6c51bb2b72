package core

import (
	"errors"
)

var (
	ErrDescriptorTableFull       = errors.New("descriptor table capacity exhausted")
	ErrInvalidView               = errors.New("resource view does not exist")
	ErrZeroPrebuildSize          = errors.New("acceleration structure prebuild size is zero")
	ErrScratchNotUnorderedAccess = errors.New("scratch buffer is not in the unordered access state")
	ErrUploadBufferFull          = errors.New("upload buffer exhausted")
	ErrDeviceRemoved             = errors.New("device removed")
	ErrRaytracingUnsupported     = errors.New("device does not support raytracing")
	ErrInvalidConfig             = errors.New("invalid configuration")
	ErrNotHostVisible            = errors.New("resource is not host visible")
)
