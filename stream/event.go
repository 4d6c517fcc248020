package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

const maxEventSize = 4 * 1024 * 1024

// Event is a single server-sent event.
type Event struct {
	ID    *string
	Type  string
	Data  string
	Retry int
}

// EventStream lazily reads events from a stream response body. It cannot be restarted;
// resume by opening a new stream with the last seen event id.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &EventStream{body: body, scanner: scanner}
}

// Next returns the next event, or io.EOF once the stream ends.
func (s *EventStream) Next() (*Event, error) {
	event := &Event{}
	var data []string
	hasData := false
	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if line == "" {
			if !hasData {
				// nothing to dispatch, but id and retry still carry over
				if event.ID != nil || event.Retry > 0 {
					return event, nil
				}
				event = &Event{}
				continue
			}
			event.Data = strings.Join(data, "\n")
			if event.Type == "" {
				event.Type = "message"
			}
			return event, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event.Type = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				id := value
				event.ID = &id
			}
		case "retry":
			if retry, err := strconv.Atoi(value); err == nil && retry >= 0 {
				event.Retry = retry
			}
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying response body.
func (s *EventStream) Close() error {
	return s.body.Close()
}
