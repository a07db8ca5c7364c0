package crosec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	writes     int
	failTimes  int
	drained    int
	lastChunks [][]byte
}

func (f *fakeWriter) WriteChunk(chunk []byte) error {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	f.lastChunks = append(f.lastChunks, cp)
	f.writes++
	return nil
}

func (f *fakeWriter) ReadStatus() (uint32, error) {
	if f.failTimes > 0 {
		f.failTimes--
		return 1, nil
	}

	return 0, nil
}

func (f *fakeWriter) Drain() { f.drained++ }

func TestWriteBlockSucceedsFirstTry(t *testing.T) {
	w := &fakeWriter{}
	err := WriteBlock(w, []byte("header"), [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, 0, w.drained)
}

func TestWriteBlockRetriesOnNonzeroStatus(t *testing.T) {
	w := &fakeWriter{failTimes: 2}
	err := WriteBlock(w, []byte("header"), [][]byte{[]byte("a")})
	require.NoError(t, err)
	assert.Equal(t, 2, w.drained)
}
