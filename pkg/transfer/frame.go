// Package transfer implements the chunked upload protocol used to attach
// auxiliary input files to a job: the binary frame format clients send,
// and the per-file Transfer bookkeeping that enforces strictly sequential
// chunk delivery.
package transfer

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Frame layout: 36 bytes job id (UUID text), 36 bytes transfer id
// (UUID text), 4 bytes little-endian chunk index, remaining bytes payload.
const (
	uuidTextLen    = 36
	indexLen       = 4
	MinFrameLength = 2*uuidTextLen + indexLen
)

// Frame is one decoded upload chunk.
type Frame struct {
	JobID      string
	TransferID string
	Index      uint32
	Data       []byte
}

// ParseFrame decodes an upload chunk frame. Undersized or malformed frames
// are rejected here, before any job is resolved.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < MinFrameLength {
		return Frame{}, fmt.Errorf("frame must be at least %d bytes long", MinFrameLength)
	}

	jobID := b[:uuidTextLen]
	transferID := b[uuidTextLen : 2*uuidTextLen]
	if !utf8.Valid(jobID) {
		return Frame{}, fmt.Errorf("job id part is not a valid UTF-8 byte sequence")
	}
	if !utf8.Valid(transferID) {
		return Frame{}, fmt.Errorf("transfer id part is not a valid UTF-8 byte sequence")
	}

	idx := binary.LittleEndian.Uint32(b[2*uuidTextLen : MinFrameLength])

	data := make([]byte, len(b)-MinFrameLength)
	copy(data, b[MinFrameLength:])

	return Frame{
		JobID:      string(jobID),
		TransferID: string(transferID),
		Index:      idx,
		Data:       data,
	}, nil
}
