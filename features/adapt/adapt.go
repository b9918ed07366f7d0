package adapt

import "errors"

// Job states as persisted. The pipeline drives transitions; the repo only
// records them.
const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

var ErrNotFound = errors.New("job not found")

// Snapshot is the read model served to clients, both as the one-shot GET
// response and as each NDJSON stream event. Chunk results are keyed by
// stringified index so partial maps merge cleanly on the client side.
type Snapshot struct {
	TotalChunks      int               `json:"total_chunks"`
	ProcessedChunks  int               `json:"processed_chunks"`
	SimplifiedChunks map[string]string `json:"simplified_chunks"`
	Completed        bool              `json:"completed"`
	Error            string            `json:"error"`
	Summary          string            `json:"summary,omitempty"`
}

// Terminal reports whether the job has finished, one way or the other.
func (s *Snapshot) Terminal() bool {
	return s.Completed || s.Error != ""
}
