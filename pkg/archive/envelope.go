package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"
)

// ErrCorrupted is returned when a stored envelope fails its checksum
var ErrCorrupted = errors.New("archive entry is corrupted")

const envelopeHeaderSize = 20

// envelope frames one archived record with the layout it was decoded with.
// Format: [CRC32(4)][LayoutSize(4)][PayloadSize(4)][Timestamp(8)][Layout][Payload]
type envelope struct {
	CRC32       uint32
	LayoutSize  uint32
	PayloadSize uint32
	Timestamp   uint64 // Unix nanoseconds
	Layout      []byte
	Payload     []byte // record JSON
}

func newEnvelope(layout string, payload []byte, at time.Time) (*envelope, error) {
	if uint64(len(layout)) > uint64(^uint32(0)) || uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("archive entry too large: layout=%d payload=%d", len(layout), len(payload))
	}
	e := &envelope{
		LayoutSize:  uint32(len(layout)),
		PayloadSize: uint32(len(payload)),
		Timestamp:   uint64(at.UnixNano()),
		Layout:      []byte(layout),
		Payload:     payload,
	}
	e.CRC32 = e.checksum()
	return e, nil
}

func (e *envelope) size() int {
	return envelopeHeaderSize + len(e.Layout) + len(e.Payload)
}

func (e *envelope) encode() []byte {
	buf := make([]byte, e.size())
	binary.LittleEndian.PutUint32(buf[0:], e.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], e.LayoutSize)
	binary.LittleEndian.PutUint32(buf[8:], e.PayloadSize)
	binary.LittleEndian.PutUint64(buf[12:], e.Timestamp)
	copy(buf[envelopeHeaderSize:], e.Layout)
	copy(buf[envelopeHeaderSize+len(e.Layout):], e.Payload)
	return buf
}

// decodeEnvelope parses and verifies data. The envelope owns copies of the
// layout and payload bytes.
func decodeEnvelope(data []byte) (*envelope, error) {
	if len(data) < envelopeHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupted, len(data))
	}
	e := &envelope{
		CRC32:       binary.LittleEndian.Uint32(data[0:4]),
		LayoutSize:  binary.LittleEndian.Uint32(data[4:8]),
		PayloadSize: binary.LittleEndian.Uint32(data[8:12]),
		Timestamp:   binary.LittleEndian.Uint64(data[12:20]),
	}
	want := uint64(envelopeHeaderSize) + uint64(e.LayoutSize) + uint64(e.PayloadSize)
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("%w: length %d, header declares %d", ErrCorrupted, len(data), want)
	}
	body := data[envelopeHeaderSize:]
	e.Layout = append([]byte(nil), body[:e.LayoutSize]...)
	e.Payload = append([]byte(nil), body[e.LayoutSize:]...)
	if got := e.checksum(); got != e.CRC32 {
		return nil, fmt.Errorf("%w: CRC32 mismatch: %d != %d", ErrCorrupted, e.CRC32, got)
	}
	return e, nil
}

// checksum covers everything but the CRC field
func (e *envelope) checksum() uint32 {
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], e.LayoutSize)
	binary.LittleEndian.PutUint32(hdr[4:], e.PayloadSize)
	binary.LittleEndian.PutUint64(hdr[8:], e.Timestamp)

	crc := crc32.NewIEEE()
	crc.Write(hdr[:])
	crc.Write(e.Layout)
	crc.Write(e.Payload)
	return crc.Sum32()
}
