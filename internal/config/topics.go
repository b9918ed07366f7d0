package config

const (
	// TopicAdaptTask is the NSQ topic for content-adaptation jobs.
	TopicAdaptTask = "adapt.task"

	// ChannelWorker is the NSQ channel the pipeline worker consumes from.
	ChannelWorker = "worker"
)
