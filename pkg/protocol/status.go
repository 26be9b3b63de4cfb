package protocol

// ProcessingStatus is the local lifecycle state of a ticket under
// management. It is owned by the queue store and never written to the
// remote system.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusWorking    ProcessingStatus = "working"
	StatusReady      ProcessingStatus = "ready"
	StatusNeedsInput ProcessingStatus = "needs_input"
	StatusPaused     ProcessingStatus = "paused"
	StatusError      ProcessingStatus = "error"
	StatusDone       ProcessingStatus = "done"

	// StatusAll is a filter sentinel that matches every status. It is
	// never stored on a queue item.
	StatusAll ProcessingStatus = "all"
)

// statusRank orders statuses for display: actionable work first, finished
// work last.
var statusRank = map[ProcessingStatus]int{
	StatusReady:      0,
	StatusNeedsInput: 1,
	StatusWorking:    2,
	StatusPending:    3,
	StatusError:      4,
	StatusPaused:     5,
	StatusDone:       6,
}

// Rank returns the display sort rank of the status. Unknown statuses sort
// after all known ones.
func (s ProcessingStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

// Valid reports whether s is a storable processing status.
func (s ProcessingStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}
