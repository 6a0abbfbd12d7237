package history

// FetchStatus is the paging state machine:
//
//	StatusIdle -> StatusInProgress -> {StatusSuccess | StatusEmpty | StatusError}
//
// Success and Empty leave the view ready for the next trigger. Error is
// terminal for that attempt only; a later trigger may fetch again.
// StatusEmpty means the collection itself had nothing to show (first page
// empty, or the last record was deleted) - consumers render "nothing
// here" rather than "something went wrong".
type FetchStatus string

const (
	StatusIdle       FetchStatus = "idle"
	StatusInProgress FetchStatus = "in_progress"
	StatusSuccess    FetchStatus = "success"
	StatusEmpty      FetchStatus = "empty"
	StatusError      FetchStatus = "error"
)
