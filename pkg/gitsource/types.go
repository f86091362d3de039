package gitsource

import "time"

// CommitInfo describes a commit of the rules repository.
type CommitInfo struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Branch    string    `json:"branch"`
}

// PullResult is the outcome of one pull.
type PullResult struct {
	FromSHA      string
	ToSHA        string
	ChangedFiles []string // repository-relative, slash separated
	HadChanges   bool
}

// Stats counts repository operations.
type Stats struct {
	CloneDuration   time.Duration
	PullDuration    time.Duration
	LastCommitSHA   string
	LastPullTime    time.Time
	FailedPulls     int64
	SuccessfulPulls int64
}
