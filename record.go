// record.go: on-disk record header layout.
//
// Record layout, little-endian, 40-byte header:
//
//	magic      [4]byte   "NREC"
//	camera_id  [16]byte  UTF-8, zero-padded, truncated if longer
//	start_ts   int64     unix seconds
//	end_ts     int64     unix seconds
//	data_len   uint32    payload size in bytes
//	payload    data_len bytes
//
// Field offsets and the explicit little-endian encode/decode below follow
// the same shape as a fixed binary header elsewhere in the corpus: named
// byte offsets, one function to encode the whole header into a pre-sized
// buffer, one to decode it back.
package storage

import (
	"encoding/binary"
	"fmt"
)

const (
	recordMagic     = "NREC"
	recordMagicSize = 4
	cameraIDSize    = 16
	recordHeaderSize = recordMagicSize + cameraIDSize + 8 + 8 + 4 // 40

	poolMagic       = "NVRPOOL0"
	poolMagicSize   = 8
	poolHeaderSize  = 64
	poolReservedSize = 40
)

// Record header field offsets within the 40-byte header.
const (
	offRecMagic    = 0
	offRecCameraID = offRecMagic + recordMagicSize
	offRecStartTS  = offRecCameraID + cameraIDSize
	offRecEndTS    = offRecStartTS + 8
	offRecDataLen  = offRecEndTS + 8
)

// Pool header field offsets within the 64-byte header.
const (
	offPoolMagic     = 0
	offPoolID        = offPoolMagic + poolMagicSize
	offPoolCreatedAt = offPoolID + 8
	offPoolReserved  = offPoolCreatedAt + 8
)

// recordHeader is the decoded form of a record's 40-byte on-disk header.
type recordHeader struct {
	CameraID string
	StartTS  int64
	EndTS    int64
	DataLen  uint32
}

// encodeCameraID zero-pads or truncates id to cameraIDSize bytes.
func encodeCameraID(id string) [cameraIDSize]byte {
	var out [cameraIDSize]byte
	copy(out[:], id)
	return out
}

func decodeCameraID(b []byte) string {
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[:end])
}

// encodeRecordHeader writes the 40-byte record header into buf[0:40].
// buf must be at least recordHeaderSize bytes.
func encodeRecordHeader(buf []byte, cameraID string, startTS, endTS int64, dataLen uint32) {
	copy(buf[offRecMagic:], recordMagic)
	cam := encodeCameraID(cameraID)
	copy(buf[offRecCameraID:], cam[:])
	binary.LittleEndian.PutUint64(buf[offRecStartTS:], uint64(startTS))
	binary.LittleEndian.PutUint64(buf[offRecEndTS:], uint64(endTS))
	binary.LittleEndian.PutUint32(buf[offRecDataLen:], dataLen)
}

// decodeRecordHeader parses a 40-byte record header. Returns false (with
// no error) if the magic does not match, signalling the scanner should
// stop — this is the normal "reached the end of live records" case, not a
// failure.
func decodeRecordHeader(buf []byte) (recordHeader, bool, error) {
	if len(buf) < recordHeaderSize {
		return recordHeader{}, false, fmt.Errorf("record header short read: %d bytes", len(buf))
	}
	if string(buf[offRecMagic:offRecMagic+recordMagicSize]) != recordMagic {
		return recordHeader{}, false, nil
	}
	return recordHeader{
		CameraID: decodeCameraID(buf[offRecCameraID : offRecCameraID+cameraIDSize]),
		StartTS:  int64(binary.LittleEndian.Uint64(buf[offRecStartTS:])),
		EndTS:    int64(binary.LittleEndian.Uint64(buf[offRecEndTS:])),
		DataLen:  binary.LittleEndian.Uint32(buf[offRecDataLen:]),
	}, true, nil
}

// poolHeader is the decoded form of a pool file's 64-byte header.
type poolHeader struct {
	PoolID    uint64
	CreatedAt int64
}

// encodePoolHeader writes the 64-byte pool header into a freshly allocated
// buffer, ready to be written atomically at offset 0 of a pool file.
func encodePoolHeader(poolID uint64, createdAt int64) []byte {
	buf := make([]byte, poolHeaderSize)
	copy(buf[offPoolMagic:], poolMagic)
	binary.LittleEndian.PutUint64(buf[offPoolID:], poolID)
	binary.LittleEndian.PutUint64(buf[offPoolCreatedAt:], uint64(createdAt))
	// buf[offPoolReserved:] is already zero-filled (poolReservedSize bytes).
	return buf
}

// decodePoolHeader parses a 64-byte pool header. ok is false (no error) if
// the magic doesn't match, meaning the slot is adopted as empty rather
// than treated as a hard failure.
func decodePoolHeader(buf []byte) (hdr poolHeader, ok bool, err error) {
	if len(buf) < poolHeaderSize {
		return poolHeader{}, false, fmt.Errorf("pool header short read: %d bytes", len(buf))
	}
	if string(buf[offPoolMagic:offPoolMagic+poolMagicSize]) != poolMagic {
		return poolHeader{}, false, nil
	}
	return poolHeader{
		PoolID:    binary.LittleEndian.Uint64(buf[offPoolID:]),
		CreatedAt: int64(binary.LittleEndian.Uint64(buf[offPoolCreatedAt:])),
	}, true, nil
}
