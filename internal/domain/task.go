package domain

// TaskStatus is the lifecycle state of a backfill task.
type TaskStatus string

// Task statuses.
const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// BackfillTask is a persisted unit of historical-data retrieval work.
// Corresponds to the backfill_tasks table, keyed by token_address.
// Invariant: Attempts < max attempts while Status is pending; the task
// transitions to failed permanently once Attempts reaches the ceiling.
type BackfillTask struct {
	TokenAddress  string     // token mint address (primary key)
	Symbol        string     // ticker symbol
	Name          string     // display name
	Pool          *string    // resolved pool address (nullable until resolved)
	Status        TaskStatus // pending | done | failed
	Attempts      int        // processing attempts so far
	LastAttemptMs int64      // Unix ms of last attempt, 0 if never attempted
	Error         string     // last processing error, empty if none
	EnqueuedMs    int64      // Unix ms when the task was enqueued
	CompletedMs   int64      // Unix ms when the task reached done, 0 otherwise
}
