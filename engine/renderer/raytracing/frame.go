package raytracing

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
)

// FrameTopLevels keeps one top level structure per frame in flight. Slot i
// is only rebuilt once the frame that last used it has retired.
type FrameTopLevels struct {
	builder  *Builder
	releaser Releaser
	name     string
	slots    []*TopLevel
}

func NewFrameTopLevels(builder *Builder, releaser Releaser, name string, framesInFlight uint32) *FrameTopLevels {
	return &FrameTopLevels{
		builder:  builder,
		releaser: releaser,
		name:     name,
		slots:    make([]*TopLevel, framesInFlight),
	}
}

// Current returns the structure of frameIndex, nil before its first Rebuild.
func (f *FrameTopLevels) Current(frameIndex uint32) *TopLevel {
	return f.slots[f.slot(frameIndex)]
}

// Rebuild replaces the structure of frameIndex with one over instances and
// records its build. The previous one is handed to the releaser.
func (f *FrameTopLevels) Rebuild(frameIndex uint32, instances []TopLevelInstance, rec Recorder) (*TopLevel, error) {
	slot := f.slot(frameIndex)
	tlas, err := f.builder.NewTopLevel(fmt.Sprintf("%s[%d]", f.name, slot), instances)
	if err != nil {
		return nil, err
	}
	f.builder.BuildTopLevel(rec, tlas)

	if previous := f.slots[slot]; previous != nil {
		previous.Release(f.releaser)
	}
	f.slots[slot] = tlas
	return tlas, nil
}

// Destroy releases every slot.
func (f *FrameTopLevels) Destroy() {
	for i, tlas := range f.slots {
		if tlas != nil {
			tlas.Release(f.releaser)
			f.slots[i] = nil
		}
	}
}

func (f *FrameTopLevels) slot(frameIndex uint32) int {
	core.Assert(len(f.slots) > 0, "len(slots) > 0", nil, "%s has no frame slots", f.name)
	return int(frameIndex) % len(f.slots)
}
