package a2a

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// sseEvent is one Server-Sent Event record.
type sseEvent struct {
	Type string
	Data string
}

// sseDecoder reads SSE records line by line.
type sseDecoder struct {
	scanner *bufio.Scanner
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &sseDecoder{scanner: s}
}

// Decode returns the next event, or io.EOF when the stream ends.
func (d *sseDecoder) Decode() (*sseEvent, error) {
	ev := &sseEvent{}
	var data []string

	for d.scanner.Scan() {
		line := d.scanner.Text()

		if line == "" {
			if len(data) > 0 || ev.Type != "" {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}

		// Comment line.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Type = value
		case "data":
			data = append(data, value)
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("sse scanner: %w", err)
	}

	if len(data) > 0 || ev.Type != "" {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}

	return nil, io.EOF
}
