package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Decoder reads a text/event-stream body and yields the data payload of each
// event. Framing is byte-oriented: bytes are buffered until the double-newline
// event delimiter, so a multi-byte UTF-8 character split across network reads
// is carried intact to the next read rather than decoded in half.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitEvents)
	return &Decoder{scanner: scanner}
}

// Next returns the data payload of the next event, or io.EOF when the stream
// ends. Events with no data lines (comments, keep-alives) are skipped.
func (d *Decoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		if data := dataPayload(d.scanner.Bytes()); data != nil {
			return data, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// splitEvents is a bufio.SplitFunc that tokenizes on the blank-line event
// delimiter, accepting both \n\n and \r\n\r\n. Whichever delimiter occurs
// first in the buffer wins, so CRLF and LF framing can be mixed in one
// stream without merging adjacent events.
func splitEvents(data []byte, atEOF bool) (int, []byte, error) {
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	// A CRLF delimiter also contains "\n\n" starting one byte in; when both
	// are found, the earlier one is the real boundary.
	if crlf >= 0 && (lf < 0 || crlf < lf) {
		return crlf + 4, data[:crlf], nil
	}
	if lf >= 0 {
		return lf + 2, data[:lf], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// dataPayload extracts the concatenated "data:" field of one raw event block.
// Multiple data lines are joined with a newline, per the SSE field rules.
func dataPayload(block []byte) []byte {
	var parts []string
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			parts = append(parts, strings.TrimPrefix(rest, " "))
		}
	}
	if parts == nil {
		return nil
	}
	return []byte(strings.Join(parts, "\n"))
}
