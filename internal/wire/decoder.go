package wire

import (
	"bytes"
	"encoding/json"

	"github.com/adragomir/pi.nvim/pkg/logger"
)

// maxLineBytes caps one buffered line. A peer that streams more than this
// without a newline gets the line dropped; framing resynchronizes at the next
// newline.
const maxLineBytes = 8 * 1024 * 1024

// Decoder turns an incoming byte stream into discrete JSON frames.
//
// Framing is newline-anchored, not JSON-anchored: a line that fails to parse
// is dropped without affecting the lines after it. Partial trailing input is
// buffered until the next Feed.
type Decoder struct {
	buf        []byte
	discarding bool
}

// NewDecoder returns an empty stream decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data to the internal buffer and returns every complete frame
// now available, in stream order.
func (d *Decoder) Feed(data []byte) []json.RawMessage {
	d.buf = append(d.buf, data...)

	var frames []json.RawMessage
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			if len(d.buf) > maxLineBytes {
				logger.Warnf("[wire] dropped oversized line (%d bytes buffered)", len(d.buf))
				d.buf = nil
				d.discarding = true
			}
			return frames
		}
		line := bytes.TrimSpace(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		if d.discarding {
			// Tail of a line that was already dropped for its size.
			d.discarding = false
			continue
		}
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			logger.Tracef("[wire] dropped invalid frame (len=%d)", len(line))
			continue
		}
		frame := make(json.RawMessage, len(line))
		copy(frame, line)
		frames = append(frames, frame)
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (d *Decoder) Pending() int { return len(d.buf) }

// Reset discards any buffered partial input.
func (d *Decoder) Reset() {
	d.buf = nil
	d.discarding = false
}
