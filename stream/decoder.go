// Frame decoder for the newline-delimited "data:" stream.

package stream

import (
	"bytes"
	"strings"
)

// doneSentinel terminates the event sequence without producing a payload.
const doneSentinel = "[DONE]"

// Frame is one complete decoded line of the stream. Done marks the
// [DONE] sentinel; a done frame carries no payload.
type Frame struct {
	Payload string
	Done    bool
}

// Decoder reassembles arbitrarily-chunked bytes into complete frames.
// Chunk boundaries may fall anywhere, including inside a JSON object, so
// the decoder holds the trailing incomplete fragment between writes.
//
// Not safe for concurrent use; a decoder belongs to exactly one stream.
type Decoder struct {
	buf  []byte
	done bool
}

// NewDecoder returns a decoder with an empty carry-over buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends a chunk and returns all frames completed by it. After the
// [DONE] sentinel has been seen the decoder is exhausted and further
// chunks are discarded.
func (d *Decoder) Write(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return frames
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		frame, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		frames = append(frames, frame)
		if frame.Done {
			d.buf = nil
			return frames
		}
	}
}

// Flush drains any buffered partial line at end of stream. Transports call
// this once after the last chunk so a missing trailing newline does not
// swallow the final frame.
func (d *Decoder) Flush() []Frame {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	if frame, ok := d.decodeLine(line); ok {
		return []Frame{frame}
	}
	return nil
}

// Done reports whether the [DONE] sentinel has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// decodeLine turns one complete line into a frame. Blank lines (SSE event
// separators) and non-data lines are skipped.
func (d *Decoder) decodeLine(line string) (Frame, bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return Frame{}, false
	}
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return Frame{}, false
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Frame{}, false
	}
	if payload == doneSentinel {
		d.done = true
		return Frame{Done: true}, true
	}
	return Frame{Payload: payload}, true
}
