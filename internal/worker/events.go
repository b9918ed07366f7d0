package worker

import "klaro/internal/pipeline"

// AdaptTaskPayload is the message body published to the adapt.task topic.
// The correlation id rides along so worker-side logs join up with the
// originating request.
type AdaptTaskPayload struct {
	JobID         string           `json:"job_id"`
	Content       string           `json:"content"`
	Profile       pipeline.Profile `json:"profile"`
	MaxChunkSize  int              `json:"max_chunk_size,omitempty"`
	WantSummary   bool             `json:"want_summary,omitempty"`
	CorrelationID string           `json:"correlation_id"`
}
