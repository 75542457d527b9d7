package ipc

import (
	"encoding/binary"

	"github.com/pithecene-io/sliderule/types"
)

// AppendFrame appends one encoded frame to dst. The type size written to
// the header includes the NUL terminator.
func AppendFrame(dst []byte, recordType string, payload []byte) []byte {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(types.FrameVersion))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(recordType)+1))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))

	dst = append(dst, hdr[:]...)
	dst = append(dst, recordType...)
	dst = append(dst, 0)
	return append(dst, payload...)
}

// EncodeFrame returns one encoded frame.
func EncodeFrame(recordType string, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(recordType)+1+len(payload)), recordType, payload)
}
