package simulator

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const (
	framePrefix = "data:"
	doneFrame   = "[DONE]"
)

type streamFrame struct {
	Content *string `json:"content"`
	Error   string  `json:"error,omitempty"`
}

// ReadStream consumes server-sent `data:` frames until `data: [DONE]` and
// returns the concatenated content and frame count. A frame that is not a JSON
// object with a content field, an error frame, or a stream that ends before
// the sentinel yields a ValidationError.
func ReadStream(r io.Reader) (string, int, error) {
	var (
		sb     strings.Builder
		frames int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, framePrefix) {
			// event:, id: and retry: fields carry nothing we validate
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
		if payload == doneFrame {
			return sb.String(), frames, nil
		}

		var f streamFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return sb.String(), frames, &ValidationError{Task: TaskStream, Reason: "malformed frame: " + err.Error()}
		}
		if f.Error != "" {
			return sb.String(), frames, &ValidationError{Task: TaskStream, Reason: "error frame: " + f.Error}
		}
		if f.Content == nil {
			return sb.String(), frames, &ValidationError{Task: TaskStream, Reason: "frame without content"}
		}
		sb.WriteString(*f.Content)
		frames++
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), frames, err
	}
	return sb.String(), frames, &ValidationError{Task: TaskStream, Reason: "stream ended before [DONE]"}
}
