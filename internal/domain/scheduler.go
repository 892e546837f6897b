package domain

import (
	"context"
	"time"
)

// Job is a named callback run by a Scheduler.
type Job func(ctx context.Context)

// Scheduler is the host alarm facility.
type Scheduler interface {
	// Every registers a named periodic job, replacing any job with the same name.
	Every(name string, interval time.Duration, job Job)
	// Once fires a named job after delay.
	Once(name string, delay time.Duration, job Job)
}
