// Package framecodec implements the length-prefixed framing used on the video
// stream. Every frame is an 8 byte little-endian unsigned length followed by
// exactly that many payload bytes.
package framecodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the width of the length prefix in bytes.
const HeaderSize = 8

// DefaultMaxFrameSize bounds a single payload. A corrupt header must not make
// the reader allocate gigabytes.
const DefaultMaxFrameSize = 16 << 20

var (
	// ErrNeedMoreData is returned by Decoder.Next when the buffered bytes do
	// not yet hold a complete frame.
	ErrNeedMoreData = errors.New("framecodec: need more data")
	// ErrConnectionClosed is returned when the stream ends on a frame boundary.
	ErrConnectionClosed = errors.New("framecodec: connection closed")
	// ErrTruncatedFrame is returned when the stream ends inside a frame.
	ErrTruncatedFrame = errors.New("framecodec: stream closed mid-frame")
	// ErrFrameTooLarge is returned when a header announces a payload larger
	// than the configured limit.
	ErrFrameTooLarge = errors.New("framecodec: frame too large")
)

var byteOrder = binary.LittleEndian

// EncodeFrame returns payload prefixed with its length header.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	byteOrder.PutUint64(out, uint64(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [HeaderSize]byte
	byteOrder.PutUint64(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Decoder is a push decoder: callers Feed it whatever bytes a read returned
// and call Next until it reports ErrNeedMoreData. The header of a partially
// received frame is kept, so short reads never resynchronise on payload bytes.
type Decoder struct {
	buf     bytes.Buffer
	maxSize uint64

	// pending is the announced length of the frame being assembled, valid
	// when havePending is set.
	pending     uint64
	havePending bool
}

// NewDecoder returns a Decoder limited to maxSize byte payloads. A maxSize of
// zero selects DefaultMaxFrameSize.
func NewDecoder(maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Decoder{maxSize: uint64(maxSize)}
}

// Feed appends bytes received from the stream.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// InFrame reports whether the decoder holds part of a frame.
func (d *Decoder) InFrame() bool {
	return d.havePending || d.buf.Len() > 0
}

// Next returns the next complete payload, or ErrNeedMoreData.
func (d *Decoder) Next() ([]byte, error) {
	if !d.havePending {
		if d.buf.Len() < HeaderSize {
			return nil, ErrNeedMoreData
		}
		n := byteOrder.Uint64(d.buf.Next(HeaderSize))
		if n > d.maxSize {
			return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, n, d.maxSize)
		}
		d.pending = n
		d.havePending = true
	}
	if uint64(d.buf.Len()) < d.pending {
		return nil, ErrNeedMoreData
	}
	payload := make([]byte, d.pending)
	copy(payload, d.buf.Next(int(d.pending)))
	d.havePending = false
	d.pending = 0
	return payload, nil
}

// readChunk is the size of a single read from the stream.
const readChunk = 32 << 10

// Reader pulls frames from a byte stream by feeding whatever each read
// returns into a Decoder.
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte
	err error // sticky read error, reported once buffered frames are gone
}

// NewReader wraps r. A maxSize of zero selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	return &Reader{r: r, dec: NewDecoder(maxSize), buf: make([]byte, readChunk)}
}

// Next blocks until one whole frame has been read. It returns
// ErrConnectionClosed when the stream ends cleanly between frames and
// ErrTruncatedFrame when it ends part way through one.
func (fr *Reader) Next() ([]byte, error) {
	for {
		payload, err := fr.dec.Next()
		if !errors.Is(err, ErrNeedMoreData) {
			return payload, err
		}
		if fr.err != nil {
			return nil, fr.endOfStream()
		}
		n, err := fr.r.Read(fr.buf)
		fr.dec.Feed(fr.buf[:n])
		if err != nil {
			fr.err = err
		}
	}
}

func (fr *Reader) endOfStream() error {
	if !errors.Is(fr.err, io.EOF) {
		return fr.err
	}
	if fr.dec.InFrame() {
		return ErrTruncatedFrame
	}
	return ErrConnectionClosed
}
