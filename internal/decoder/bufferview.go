package decoder

import (
	"github.com/visiongate/visiongate/internal/errors"
)

// DefaultMaxSliceSize guards against corrupt vendor length fields. Payloads
// claiming more than this are rejected at access time.
const DefaultMaxSliceSize = 10 * 1024 * 1024

// BufferView is a bounds-checked accessor over a device-owned payload buffer.
// Every embedded image is addressed by an untrusted (offset, length) pair, so
// all access goes through Slice which validates before copying. The view
// never panics across the decode boundary and never leaks the underlying
// buffer; slices are copied out because the device runtime may reuse the
// buffer once the callback returns.
type BufferView struct {
	data     []byte
	maxSlice int64
}

// NewBufferView wraps data with the given per-slice size limit. A limit of
// zero or less falls back to DefaultMaxSliceSize.
func NewBufferView(data []byte, maxSlice int64) BufferView {
	if maxSlice <= 0 {
		maxSlice = DefaultMaxSliceSize
	}
	return BufferView{data: data, maxSlice: maxSlice}
}

// Len returns the total length of the underlying buffer.
func (v BufferView) Len() int {
	return len(v.data)
}

// Slice returns a copy of the byte range [offset, offset+length). It fails
// with an out-of-range error when the range exceeds the buffer, the length is
// zero, or the length exceeds the configured maximum. Callers treat the error
// as "skip this field", not as an event-level failure.
func (v BufferView) Slice(offset, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, errors.Newf("zero-length slice requested at offset %d", offset).
			Component("decoder").
			Category(errors.CategoryOutOfRange).
			Build()
	}
	if int64(length) > v.maxSlice {
		return nil, errors.Newf("slice length %d exceeds maximum payload size %d", length, v.maxSlice).
			Component("decoder").
			Category(errors.CategoryOutOfRange).
			Context("offset", offset).
			Build()
	}
	end := uint64(offset) + uint64(length)
	if end > uint64(len(v.data)) {
		return nil, errors.Newf("slice [%d,%d) exceeds buffer length %d", offset, end, len(v.data)).
			Component("decoder").
			Category(errors.CategoryOutOfRange).
			Build()
	}

	out := make([]byte, length)
	copy(out, v.data[offset:end])
	return out, nil
}
