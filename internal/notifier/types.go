package notifier

import (
	"context"
	"time"

	"pingbot/internal/users"
)

type Config struct {
	// Workers bounds concurrent sends. <=0 means 4.
	Workers int
	// RatePerSec throttles sends across all workers. <=0 disables throttling.
	// Each recipient gets exactly one attempt.
	RatePerSec int
}

// AdminLister is the slice of users.Directory the fan-out needs.
type AdminLister interface {
	ListByRole(ctx context.Context, role users.Role, offset, limit int) ([]users.Identity, int, error)
}

type Failure struct {
	ChatID string `json:"chatId"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// Result summarizes one fan-out batch. Attempted == Delivered + len(Failed).
type Result struct {
	BatchID   string        `json:"batchId"`
	Attempted int           `json:"attempted"`
	Delivered int           `json:"delivered"`
	Failed    []Failure     `json:"failed,omitempty"`
	Took      time.Duration `json:"took"`
}
