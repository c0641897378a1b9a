package framecodec

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameHeader(t *testing.T) {
	got := EncodeFrame([]byte("abc"))
	want := []byte{3, 0, 0, 0, 0, 0, 0, 0, 'a', 'b', 'c'}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EncodeFrame mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFrameMatchesEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	assert.Equal(t, EncodeFrame([]byte("hello")), buf.Bytes())
}

func payloads() [][]byte {
	rng := rand.New(rand.NewSource(7))
	big := make([]byte, 70_000)
	rng.Read(big)
	return [][]byte{
		{},
		{0},
		[]byte("x"),
		[]byte("a,b\n"),
		EncodeFrame([]byte("nested header lookalike")),
		big,
	}
}

func TestDecoderChunked(t *testing.T) {
	for _, chunk := range []int{1, 2, 3, 7, 8, 9, 4096} {
		var stream []byte
		for _, p := range payloads() {
			stream = append(stream, EncodeFrame(p)...)
		}

		d := NewDecoder(0)
		var got [][]byte
		for off := 0; off < len(stream); off += chunk {
			end := min(off+chunk, len(stream))
			d.Feed(stream[off:end])
			for {
				p, err := d.Next()
				if errors.Is(err, ErrNeedMoreData) {
					break
				}
				require.NoError(t, err)
				got = append(got, p)
			}
		}

		if diff := cmp.Diff(payloads(), got); diff != "" {
			t.Errorf("chunk=%d: decoded frames mismatch (-want +got):\n%s", chunk, diff)
		}
		assert.False(t, d.InFrame(), "chunk=%d: decoder should be idle", chunk)
	}
}

func TestDecoderHoldsPartialHeader(t *testing.T) {
	frame := EncodeFrame([]byte("payload"))
	d := NewDecoder(0)

	d.Feed(frame[:5])
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrNeedMoreData)
	assert.True(t, d.InFrame())

	d.Feed(frame[5:10])
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrNeedMoreData)

	d.Feed(frame[10:])
	p, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(p))
}

func TestDecoderFrameTooLarge(t *testing.T) {
	d := NewDecoder(4)
	d.Feed(EncodeFrame([]byte("too long")))
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// trickleReader returns at most n bytes per Read, like a slow socket.
type trickleReader struct {
	r io.Reader
	n int
}

func (t *trickleReader) Read(p []byte) (int, error) {
	if len(p) > t.n {
		p = p[:t.n]
	}
	return t.r.Read(p)
}

func TestReaderRoundTripShortReads(t *testing.T) {
	var stream bytes.Buffer
	for _, p := range payloads() {
		require.NoError(t, WriteFrame(&stream, p))
	}

	fr := NewReader(&trickleReader{r: &stream, n: 3}, 0)
	for i, want := range payloads() {
		got, err := fr.Next()
		require.NoError(t, err, "frame %d", i)
		assert.True(t, bytes.Equal(want, got), "frame %d differs", i)
	}
	_, err := fr.Next()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReaderTruncated(t *testing.T) {
	frame := EncodeFrame([]byte("0123456789"))

	t.Run("mid header", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(frame[:4]), 0).Next()
		assert.ErrorIs(t, err, ErrTruncatedFrame)
	})
	t.Run("mid payload", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(frame[:12]), 0).Next()
		assert.ErrorIs(t, err, ErrTruncatedFrame)
	})
	t.Run("header only", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(frame[:HeaderSize]), 0).Next()
		assert.ErrorIs(t, err, ErrTruncatedFrame)
	})
	t.Run("empty stream", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(nil), 0).Next()
		assert.ErrorIs(t, err, ErrConnectionClosed)
	})
}

func TestReaderFrameTooLarge(t *testing.T) {
	_, err := NewReader(bytes.NewReader(EncodeFrame(make([]byte, 10))), 5).Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReaderDataWithEOF(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, WriteFrame(&stream, []byte("last")))

	fr := NewReader(iotest.DataErrReader(&stream), 0)
	got, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "last", string(got))

	_, err = fr.Next()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReaderPassesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	partial := EncodeFrame([]byte("0123456789"))[:11]
	r := io.MultiReader(bytes.NewReader(partial), iotest.ErrReader(boom))

	_, err := NewReader(r, 0).Next()
	assert.ErrorIs(t, err, boom)
}
