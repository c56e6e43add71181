package gateway

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// sseEvent is one dispatched server-sent event
type sseEvent struct {
	Id   string
	Name string
	Data []byte
}

// readEvents parses a text/event-stream body and calls fn for every complete
// event. A trailing event without its blank line is discarded at EOF.
func readEvents(r io.Reader, maxLine int, fn func(sseEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)

	var (
		evt     sseEvent
		data    bytes.Buffer
		hasData bool
	)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if hasData {
				evt.Data = append([]byte(nil), data.Bytes()...)
				if evt.Name == "" {
					evt.Name = "message"
				}
				fn(evt)
			}
			evt = sseEvent{Id: evt.Id}
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case sseFieldEvent:
			evt.Name = value
		case sseFieldData:
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case sseFieldId:
			evt.Id = value
		case sseFieldRetry:
			// reconnects are driven by the caller
		}
	}
	return scanner.Err()
}
