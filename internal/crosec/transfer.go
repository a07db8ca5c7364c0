package crosec

import (
	"time"

	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// SmartTrim strips trailing 0xFF bytes from payload, keeping at least
// one byte: a 1024-byte run of zeros followed by 1024 0xFF bytes trims
// to 1025 bytes (every 0xFF but the last sentinel).
func SmartTrim(payload []byte) []byte {
	if len(payload) == 0 {
		return payload
	}

	end := len(payload)
	for end > 1 && payload[end-1] == 0xff && payload[end-2] == 0xff {
		end--
	}

	return payload[:end]
}

// ChunkBlock splits block into chunkLen-sized USB bulk writes.
func ChunkBlock(block []byte, chunkLen int) [][]byte {
	if chunkLen <= 0 {
		return [][]byte{block}
	}

	var chunks [][]byte

	for off := 0; off < len(block); off += chunkLen {
		end := off + chunkLen
		if end > len(block) {
			end = len(block)
		}

		chunks = append(chunks, block[off:end])
	}

	return chunks
}

// BlockWriter is the transport surface WriteBlock needs: bulk writes to
// the Cros-EC interface and a 4-byte status read.
type BlockWriter interface {
	WriteChunk(chunk []byte) error
	ReadStatus() (uint32, error)
	Drain()
}

const maxBlockRetries = 10

// WriteBlock sends one block (already chunked by ChunkBlock) and reads its
// 4-byte status reply, retrying the whole block up to maxBlockRetries
// times on a nonzero or failed status, draining the endpoint between
// attempts to clear stale data.
func WriteBlock(w BlockWriter, header []byte, chunks [][]byte) error {
	return fwdevice.Retry(maxBlockRetries, 10*time.Millisecond, func(attempt uint) error {
		if err := w.WriteChunk(header); err != nil {
			return err
		}

		for _, c := range chunks {
			if err := w.WriteChunk(c); err != nil {
				return err
			}
		}

		status, err := w.ReadStatus()
		if err != nil {
			w.Drain()
			return err
		}

		if status != 0 {
			w.Drain()
			return fwupderr.New(fwupderr.Busy, "block write rejected, status=%d", status)
		}

		return nil
	})
}
