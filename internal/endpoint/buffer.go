package endpoint

import "sync"

// bufPool hands out []byte slices sized for the largest legal TFTP packet:
// a sync.Pool of pointers to slices, so a receive loop that runs for the
// life of a transfer or a dispatcher doesn't allocate a new read buffer
// every iteration.
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxPacketSize)
		return &buf
	},
}

// maxPacketSize mirrors protocol.MaxPacketSize. Duplicated rather than
// imported to keep this leaf package free of a dependency on protocol.
const maxPacketSize = 516

// GetBuffer returns a buffer of length and capacity maxPacketSize from the
// pool, ready to be passed to ReceiveFrom.
func GetBuffer() []byte {
	return *bufPool.Get().(*[]byte)
}

// PutBuffer returns buf to the pool. Buffers of the wrong capacity (e.g. a
// caller-allocated one that never came from GetBuffer) are dropped instead
// of pooled.
func PutBuffer(buf []byte) {
	if cap(buf) != maxPacketSize {
		return
	}

	buf = buf[:maxPacketSize]
	bufPool.Put(&buf)
}
