package constants

// JobStatus is the canonical status for rows in extract_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued  JobStatus = "QUEUED"  // accepted, waiting for a worker
	JobStatusRunning JobStatus = "RUNNING" // in progress
	JobStatusMDOK    JobStatus = "MD_OK"   // stage 1 completed (markdown produced)
	JobStatusLLMOK   JobStatus = "LLM_OK"  // stage 2 completed (attributes extracted)
	JobStatusFailed  JobStatus = "FAILED"  // terminal failure
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusLLMOK || s == JobStatusFailed
}
