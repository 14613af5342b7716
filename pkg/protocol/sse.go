package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// SSEEvent is one server-sent event frame. Event may be empty for plain
// data frames.
type SSEEvent struct {
	Event string
	Data  string
}

// Done reports whether the frame is the OpenAI-style terminator.
func (e SSEEvent) Done() bool {
	return strings.TrimSpace(e.Data) == "[DONE]"
}

// ScanSSE reads SSE frames from r and invokes fn for each one, preserving
// upstream order. It returns the first error from fn, or nil at EOF.
func ScanSSE(r io.Reader, fn func(SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev SSEEvent
	var dataLines []string
	flush := func() error {
		if len(dataLines) == 0 && ev.Event == "" {
			return nil
		}
		ev.Data = strings.Join(dataLines, "\n")
		err := fn(ev)
		ev = SSEEvent{}
		dataLines = nil
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment, ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

// WriteSSE writes one frame to w in wire form.
func WriteSSE(w io.Writer, ev SSEEvent) error {
	if ev.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", ev.Data)
	return err
}
