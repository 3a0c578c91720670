package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// FrameHeaderBytes is the size of the little-endian length prefix.
const FrameHeaderBytes = 4

var (
	// ErrEmptyFrame is returned when a frame header announces zero bytes.
	ErrEmptyFrame = errors.New("frame length zero")
	// ErrFrameTooLarge is returned when a payload cannot be described by the header.
	ErrFrameTooLarge = errors.New("frame exceeds maximum length")
)

// Encoder writes length-prefixed frames: a 4-byte little-endian byte count
// followed by the payload bytes.
type Encoder struct {
	writer io.Writer
}

// Decoder reads length-prefixed frames. The relay only writes frames; Decoder
// is the receiving side, used to read bridge traffic back on the TCP peer.
type Decoder struct {
	reader   *bufio.Reader
	maxBytes uint32
}

// NewEncoder creates a new encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// NewDecoder creates a new decoder for the given reader. A maxBytes of zero
// accepts any announced length.
func NewDecoder(r io.Reader, maxBytes uint32) *Decoder {
	return &Decoder{reader: bufio.NewReader(r), maxBytes: maxBytes}
}

// Header returns the frame header for a payload of the given size.
func Header(size int) ([]byte, error) {
	if size < 0 || uint64(size) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	header := make([]byte, FrameHeaderBytes)
	binary.LittleEndian.PutUint32(header, uint32(size))
	return header, nil
}

// Encode writes the header and then the payload as two consecutive writes.
// Callers must not share the underlying writer with other goroutines while
// a frame is in progress.
func (e *Encoder) Encode(ctx context.Context, payload []byte) error {
	header, err := Header(len(payload))
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := e.writer.Write(header); err != nil {
		return err
	}

	_, err = e.writer.Write(payload)
	return err
}

// Decode reads the next frame payload from the stream.
func (d *Decoder) Decode(ctx context.Context) ([]byte, error) {
	header := make([]byte, FrameHeaderBytes)
	if err := d.readFull(ctx, header); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header)
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if d.maxBytes > 0 && length > d.maxBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, d.maxBytes)
	}

	payload := make([]byte, length)
	if err := d.readFull(ctx, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (d *Decoder) readFull(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.reader.Read(buf[read:])
		read += n
		if err != nil {
			if read == len(buf) {
				return nil
			}
			if errors.Is(err, io.EOF) && read > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}
