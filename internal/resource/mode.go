package resource

// ExecutionMode is how a job's batches are executed.
type ExecutionMode string

const (
	ModeStreaming ExecutionMode = "streaming"
	ModeParallel  ExecutionMode = "parallel"
)

// SelectMode picks the execution mode for a job: item counts above the
// threshold stream, everything else fans out across the parallel pool. A
// non-empty override wins.
func SelectMode(itemCount, streamingThreshold int, override ExecutionMode) ExecutionMode {
	if override == ModeStreaming || override == ModeParallel {
		return override
	}
	if streamingThreshold <= 0 {
		streamingThreshold = 50000
	}
	if itemCount > streamingThreshold {
		return ModeStreaming
	}
	return ModeParallel
}
