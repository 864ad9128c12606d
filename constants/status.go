package constants

import "strings"

// JobStatus is the canonical status for rows in document_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusSubmitted      JobStatus = "SUBMITTED"       // job row created, extraction not yet started
	JobStatusInProgress     JobStatus = "IN_PROGRESS"     // extraction running (async path)
	JobStatusExtracted      JobStatus = "EXTRACTED"       // extraction results stored, awaiting classification
	JobStatusSucceeded      JobStatus = "SUCCEEDED"       // classification stored, terminal
	JobStatusFailed         JobStatus = "FAILED"          // terminal failure
	JobStatusPartialSuccess JobStatus = "PARTIAL_SUCCESS" // extraction ended with partial results, terminal
)

var terminalStatuses = map[JobStatus]struct{}{
	JobStatusSucceeded:      {},
	JobStatusFailed:         {},
	JobStatusPartialSuccess: {},
}

// IsTerminal reports whether s is a resting state no pipeline stage may leave.
// Only an operator retry (ResetForRetry) moves a job out of FAILED.
func (s JobStatus) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// TerminalStatuses returns the terminal set as strings for store predicates.
func TerminalStatuses() []string {
	out := make([]string, 0, len(terminalStatuses))
	for s := range terminalStatuses {
		out = append(out, string(s))
	}
	return out
}

var allStatuses = []JobStatus{
	JobStatusSubmitted,
	JobStatusInProgress,
	JobStatusExtracted,
	JobStatusSucceeded,
	JobStatusFailed,
	JobStatusPartialSuccess,
}

// JobStatusStrings returns every status value, for schema validators.
func JobStatusStrings() []string {
	out := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		out[i] = string(s)
	}
	return out
}

// ParseJobStatus maps user input to a canonical status, case-insensitively.
func ParseJobStatus(s string) (JobStatus, bool) {
	candidate := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range allStatuses {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}
