package gps

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one scripted chunk per Read; "" means a read timeout.
type chunkReader struct {
	chunks []string
	err    error
	closed bool
}

func (r *chunkReader) Read(b []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	c := r.chunks[0]
	n := copy(b, c)
	if n < len(c) {
		r.chunks[0] = c[n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

func TestPortSource_SplitsAcrossReads(t *testing.T) {
	r := &chunkReader{chunks: []string{"$GNRMC,1,", "A\r\n$GNV", "TG,2\r\n$GNGLL\r\n"}}
	src := NewPortSource(r)
	ctx := context.Background()

	for _, want := range []string{"$GNRMC,1,A\r", "$GNVTG,2\r", "$GNGLL\r"} {
		line, err := src.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(line))
	}
	_, err := src.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPortSource_TimeoutIsNoData(t *testing.T) {
	r := &chunkReader{chunks: []string{"$GNRMC,", "", "1\n"}}
	src := NewPortSource(r)
	ctx := context.Background()

	_, err := src.ReadLine(ctx)
	require.ErrorIs(t, err, ErrNoData)

	line, err := src.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "$GNRMC,1", string(line), "partial data survives a timeout")
}

func TestPortSource_FlushesTrailingLineBeforeClosing(t *testing.T) {
	src := NewPortSource(&chunkReader{chunks: []string{"$GNGLL,tail"}})
	ctx := context.Background()

	line, err := src.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "$GNGLL,tail", string(line))

	_, err = src.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPortSource_ReadErrorCloses(t *testing.T) {
	boom := errors.New("device unplugged")
	src := NewPortSource(&chunkReader{err: boom})

	_, err := src.ReadLine(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestPortSource_BoundsLineLength(t *testing.T) {
	big := make([]byte, maxLineLen+10)
	for i := range big {
		big[i] = 'x'
	}
	src := NewPortSource(&chunkReader{chunks: []string{string(big[:maxLineLen/2]), string(big[maxLineLen/2:])}})

	line, err := src.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Len(t, line, maxLineLen)

	line, err = src.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Len(t, line, 10)
}

func TestPortSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPortSource(&chunkReader{chunks: []string{"$GN"}}).ReadLine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPortSource_Close(t *testing.T) {
	r := &chunkReader{}
	require.NoError(t, NewPortSource(r).Close())
	assert.True(t, r.closed)
}
