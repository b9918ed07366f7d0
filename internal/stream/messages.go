package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Message is the tagged union of events a progress stream can push. Payloads
// are validated into one of these variants at the boundary; consumers switch
// on the concrete type instead of probing for field presence.
type Message interface {
	streamMessage()
}

// NotFound means the job is not (yet) known to the server. Subscribers keep
// waiting: submission and stream subscription race.
type NotFound struct{}

// Progress is a full snapshot of a still-running job.
type Progress struct {
	TotalChunks     int
	ProcessedChunks int
	Results         map[int]string
	Summary         string
}

// Completed is the terminal snapshot of a successful job.
type Completed struct {
	TotalChunks int
	Results     map[int]string
	Summary     string
}

// Failed is the terminal snapshot of a failed job. Any results it carries
// are partial and must not be presented as the finished document.
type Failed struct {
	TotalChunks int
	Message     string
	Results     map[int]string
}

func (NotFound) streamMessage()  {}
func (Progress) streamMessage()  {}
func (Completed) streamMessage() {}
func (Failed) streamMessage()    {}

// wirePayload mirrors the NDJSON snapshot shape pushed by the server.
type wirePayload struct {
	Status           string            `json:"status,omitempty"`
	TotalChunks      int               `json:"total_chunks"`
	ProcessedChunks  int               `json:"processed_chunks"`
	SimplifiedChunks map[string]string `json:"simplified_chunks"`
	Summary          string            `json:"summary,omitempty"`
	Completed        bool              `json:"completed"`
	Error            string            `json:"error,omitempty"`
}

// ParseMessage validates one newline-delimited event into a Message variant.
func ParseMessage(line []byte) (Message, error) {
	var p wirePayload
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, fmt.Errorf("malformed stream payload: %w", err)
	}

	if p.Status == "not_found" {
		return NotFound{}, nil
	}

	results, err := decodeChunks(p.SimplifiedChunks)
	if err != nil {
		return nil, err
	}

	switch {
	case p.Error != "":
		return Failed{TotalChunks: p.TotalChunks, Message: p.Error, Results: results}, nil
	case p.Completed:
		return Completed{TotalChunks: p.TotalChunks, Results: results, Summary: p.Summary}, nil
	default:
		return Progress{
			TotalChunks:     p.TotalChunks,
			ProcessedChunks: p.ProcessedChunks,
			Results:         results,
			Summary:         p.Summary,
		}, nil
	}
}

// decodeChunks converts JSON object keys back into dense integer indices.
func decodeChunks(raw map[string]string) (map[int]string, error) {
	if len(raw) == 0 {
		return map[int]string{}, nil
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid chunk index %q", k)
		}
		out[idx] = v
	}
	return out, nil
}
