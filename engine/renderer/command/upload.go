package command

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/math"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// UploadRing hands out staging memory from one persistently mapped upload
// buffer in submission order. head and tail are positions that only grow;
// the physical offset is the position modulo the buffer size. Bytes behind
// tail belong to copies the copy queue has retired.
type UploadRing struct {
	buffer *resource.Buffer
	head   uint64
	tail   uint64

	// head at every ExecuteCommandList, oldest first.
	submissions []uploadSubmission
}

type uploadSubmission struct {
	fence uint64
	head  uint64
}

func NewUploadRing(factory *resource.Factory, size uint64) (*UploadRing, error) {
	buffer, err := factory.CreateBuffer(resource.BufferConfig{
		DebugName:    "UploadRing",
		ElementSize:  1,
		ElementCount: uint32(size),
		Flags:        resource.BufferFlagUpload,
	})
	if err != nil {
		return nil, err
	}
	return &UploadRing{buffer: buffer}, nil
}

func (u *UploadRing) Buffer() *resource.Buffer {
	return u.buffer
}

// Allocate reserves size contiguous bytes at an offset aligned to alignment
// and returns that offset. An allocation that does not fit before the end
// of the buffer wraps to offset zero. Overrunning bytes that are still
// read by unretired copies is fatal.
func (u *UploadRing) Allocate(size, alignment uint64) uint64 {
	capacity := u.buffer.Size()
	core.Assert(size <= capacity, "size <= capacity", core.ErrUploadBufferFull,
		"cannot stage %d bytes, upload buffer holds %d", size, capacity)

	lap := u.head - u.head%capacity
	offset := math.AlignUp(u.head%capacity, alignment)
	if offset+size > capacity {
		lap += capacity
		offset = 0
	}
	end := lap + offset + size
	core.Assert(end-u.tail <= capacity, "end-tail <= capacity", core.ErrUploadBufferFull,
		"cannot stage %d bytes, %d of %d upload bytes wait for the copy queue", size, u.head-u.tail, capacity)
	u.head = end
	return offset
}

// Bytes returns the mapped staging memory of [offset, offset+size).
func (u *UploadRing) Bytes(offset, size uint64) []byte {
	return u.buffer.MappedData()[offset : offset+size]
}

// Used is the number of bytes not yet reclaimed, including alignment and
// wrap padding.
func (u *UploadRing) Used() uint64 {
	return u.head - u.tail
}

// Submitted marks everything staged so far as read by the submission that
// signals fence.
func (u *UploadRing) Submitted(fence uint64) {
	u.submissions = append(u.submissions, uploadSubmission{fence: fence, head: u.head})
}

// Retire reclaims the staging bytes of every submission whose fence value
// is at most completed. Bytes staged after the last submission stay.
func (u *UploadRing) Retire(completed uint64) {
	n := 0
	for n < len(u.submissions) && u.submissions[n].fence <= completed {
		u.tail = u.submissions[n].head
		n++
	}
	u.submissions = u.submissions[n:]
	if len(u.submissions) == 0 && u.tail == u.head {
		u.head, u.tail = 0, 0
	}
}

func (u *UploadRing) Destroy() {
	u.buffer.Destroy()
}
