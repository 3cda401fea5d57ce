// Package protocol implements the binary frame protocol for stream-rpc.
//
// It solves TCP's sticky packet problem by using a fixed-size 20-byte header
// followed by three variable-length sections. The receiver reads the header
// first to learn the section lengths, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5  6         10       12        16        20
//	┌──────┬──┬──┬──┬─────────┬────────┬─────────┬─────────┬───────┬──────────┬──────────┐
//	│magic │v │ft│fl│ streamID│routeLen│ metaLen │ dataLen │ route │ metadata │   data   │
//	│ srp  │01│  │  │ uint32  │ uint16 │ uint32  │ uint32  │       │          │          │
//	└──────┴──┴──┴──┴─────────┴────────┴─────────┴─────────┴───────┴──────────┴──────────┘
//
// The stream ID multiplexes concurrent exchanges on one connection: every
// frame of an exchange (the opening request, its payloads, its terminal
// Complete/Error, a Cancel) carries the same stream ID. Route names the
// target function and is only present on the three opening request frames.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "srp" (stream-rpc protocol).
// Used to quickly reject non-protocol connections (e.g., HTTP clients
// hitting the wrong port).
const (
	MagicNumber byte = 0x73 // 's'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 20 // 3 (magic) + 1 (version) + 1 (frameType) + 1 (flags) + 4 (streamID) + 2 (routeLen) + 4 (metaLen) + 4 (dataLen)
)

// FrameType distinguishes the frames of the stream protocol.
type FrameType byte

const (
	FrameRequestResponse FrameType = 0 // Opens a 1-in → 1-out exchange (carries route + request payload)
	FrameRequestStream   FrameType = 1 // Opens a 1-in → N-out exchange (carries route + request payload)
	FrameRequestChannel  FrameType = 2 // Opens an N-in → M-out exchange (carries route + first payload)
	FramePayload         FrameType = 3 // One element of a live stream, either direction
	FrameComplete        FrameType = 4 // Normal end of a stream (no payload)
	FrameError           FrameType = 5 // Abnormal end of an exchange; data holds the error text
	FrameCancel          FrameType = 6 // Receiver should stop the exchange immediately (no payload)
	FrameHeartbeat       FrameType = 7 // KeepAlive probe (streamID 0, no payload)
)

// Flag bits carried in the flags byte.
const (
	// FlagMetadata marks that the frame carries a metadata section.
	// The flag, not metaLen, decides presence — a zero-length metadata
	// section with the flag set is still "present" (empty JSON object),
	// while an unset flag means the payload has no metadata at all.
	FlagMetadata byte = 0x01
)

// Payload is the transport-level unit: the payload data plus optional
// metadata. Metadata, when present, is a JSON-encoded header mapping;
// nil means absent.
type Payload struct {
	Data     []byte
	Metadata []byte
}

// HasMetadata reports whether the payload carries a metadata section.
func (p *Payload) HasMetadata() bool {
	return p.Metadata != nil
}

// Header represents the fixed 20-byte frame header plus the route string.
// Route is only non-empty on the three opening request frames.
type Header struct {
	FrameType FrameType
	Flags     byte
	StreamID  uint32 // Exchange multiplexing key — ties payloads/terminals to their opening request
	Route     string // Target function name, request frames only
}

// Encode writes a complete frame (header + route + metadata + data) to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames from different exchanges will interleave and
// corrupt the stream. p may be nil for Complete/Cancel/Heartbeat frames.
func Encode(w io.Writer, h *Header, p *Payload) error {
	var data, metadata []byte
	flags := h.Flags
	if p != nil {
		data = p.Data
		if p.HasMetadata() {
			metadata = p.Metadata
			flags |= FlagMetadata
		}
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(h.Route)+len(metadata)+len(data))

	// Magic number: 3 bytes — protocol identification
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	// Version: 1 byte — for future protocol upgrades
	buf[3] = Version
	// Frame type: 1 byte
	buf[4] = byte(h.FrameType)
	// Flags: 1 byte
	buf[5] = flags
	// Stream ID: 4 bytes, big-endian (network byte order)
	binary.BigEndian.PutUint32(buf[6:10], h.StreamID)
	// Route length: 2 bytes
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(h.Route)))
	// Metadata length: 4 bytes
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(metadata)))
	// Data length: 4 bytes
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(data)))

	// Append the three variable sections and write the frame in one call,
	// so a frame is a single Write on the shared connection.
	buf = append(buf, h.Route...)
	buf = append(buf, metadata...)
	buf = append(buf, data...)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// Decode reads a complete frame from r.
// It validates the magic number, version, and frame type, then uses
// io.ReadFull to read exactly the advertised section lengths, preventing
// partial reads. The returned Payload is nil when the frame carries neither
// data nor metadata (Complete/Cancel/Heartbeat).
func Decode(r io.Reader) (*Header, *Payload, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	// Reject non-protocol connections
	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	frameType := headerBuf[4]
	if frameType > byte(FrameHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported frame type: %d", frameType)
	}

	flags := headerBuf[5]
	streamID := binary.BigEndian.Uint32(headerBuf[6:10])
	routeLen := binary.BigEndian.Uint16(headerBuf[10:12])
	metaLen := binary.BigEndian.Uint32(headerBuf[12:16])
	dataLen := binary.BigEndian.Uint32(headerBuf[16:20])

	// Read the variable sections in one go
	body := make([]byte, int(routeLen)+int(metaLen)+int(dataLen))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	header := &Header{
		FrameType: FrameType(frameType),
		Flags:     flags,
		StreamID:  streamID,
		Route:     string(body[:routeLen]),
	}

	var payload *Payload
	if flags&FlagMetadata != 0 || dataLen > 0 {
		payload = &Payload{
			Data: body[int(routeLen)+int(metaLen):],
		}
		if flags&FlagMetadata != 0 {
			payload.Metadata = body[routeLen : int(routeLen)+int(metaLen)]
		}
	}

	return header, payload, nil
}
