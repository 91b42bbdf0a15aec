// Package sse decodes chat-completion streams delivered as server-sent
// events: newline-delimited "data: {...}" frames terminated by "data: [DONE]".
package sse

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
)

const (
	// DataPrefix starts every payload-bearing line.
	DataPrefix = "data: "
	// Sentinel is the payload that marks the end of the stream.
	Sentinel = "[DONE]"
)

// Result is the final state of a decoded stream.
type Result struct {
	Content string
	Done    bool
}

// Decoder accumulates assistant content from SSE chunks. It is not safe for
// concurrent use; chunks must be fed in arrival order.
type Decoder struct {
	buf      []byte
	content  strings.Builder
	done     bool
	onUpdate func(content string)
}

// NewDecoder returns a Decoder that calls onUpdate with the whole accumulated
// content every time a non-empty fragment arrives. onUpdate may be nil.
func NewDecoder(onUpdate func(content string)) *Decoder {
	return &Decoder{onUpdate: onUpdate}
}

// Feed appends a chunk to the buffer and processes every complete line in it.
// A line whose payload is not yet valid JSON is put back in front of the
// buffer and scanning stops until the next chunk.
func (d *Decoder) Feed(chunk []byte) {
	if d.done {
		return
	}
	d.buf = append(d.buf, chunk...)

	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		if !d.processLine(line) {
			requeued := make([]byte, 0, len(line)+1+len(d.buf))
			requeued = append(requeued, line...)
			requeued = append(requeued, '\n')
			d.buf = append(requeued, d.buf...)
			return
		}
	}
}

// Flush processes whatever is left in the buffer once the stream has ended,
// including a last line without a trailing newline. Leftovers that do not
// parse are dropped.
func (d *Decoder) Flush() {
	if d.done || len(d.buf) == 0 {
		d.buf = nil
		return
	}
	rest := string(d.buf)
	d.buf = nil
	for _, line := range strings.Split(rest, "\n") {
		if d.done {
			return
		}
		d.processLine(line)
	}
}

// processLine handles one line with its newline already removed. It reports
// false only when the line carries a data payload that is not valid JSON.
func (d *Decoder) processLine(line string) bool {
	line = strings.TrimSuffix(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return true
	}
	if !strings.HasPrefix(line, DataPrefix) {
		return true
	}

	payload := strings.TrimSpace(line[len(DataPrefix):])
	if payload == Sentinel {
		d.done = true
		return true
	}
	if !json.Valid([]byte(payload)) {
		return false
	}

	fragment, ok := ExtractDelta([]byte(payload))
	if ok && fragment != "" {
		d.content.WriteString(fragment)
		if d.onUpdate != nil {
			d.onUpdate(d.content.String())
		}
	}
	return true
}

// Done reports whether the sentinel has been seen.
func (d *Decoder) Done() bool { return d.done }

// Content returns the content accumulated so far.
func (d *Decoder) Content() string { return d.content.String() }

// Result returns the accumulated content and the done flag.
func (d *Decoder) Result() Result {
	return Result{Content: d.content.String(), Done: d.done}
}

// ExtractDelta returns choices[0].delta.content from a chat-completion chunk.
// Any missing level, or a non-string value, yields ok=false.
func ExtractDelta(payload []byte) (string, bool) {
	s, err := jsonparser.GetString(payload, "choices", "[0]", "delta", "content")
	if err != nil {
		return "", false
	}
	return s, true
}
