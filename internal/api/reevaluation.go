package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"intertexe/backend/internal/catalog"
)

// ErrJobRunning is returned when a re-evaluation is requested while another is active.
var ErrJobRunning = errors.New("re-evaluation already running")

// reevaluationJob tracks the state of a running catalog re-evaluation.
type reevaluationJob struct {
	id        string
	cancel    context.CancelFunc
	startedAt time.Time
	total     int64
	done      chan struct{}
}

// startReevaluation launches a new asynchronous job. The caller must hold s.jobMu.
func (s *Server) startReevaluation() (*reevaluationJob, error) {
	if s.activeJob != nil {
		return nil, ErrJobRunning
	}
	total, err := s.db.CountProducts()
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &reevaluationJob{
		id:        uuid.NewString(),
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		total:     total,
		done:      make(chan struct{}),
	}
	s.activeJob = job
	s.notifier.Broadcast(ReevaluationEvent{
		Type:    "started",
		JobID:   job.id,
		Total:   job.total,
		Message: "re-evaluation started",
	})
	go s.runReevaluation(ctx, job)
	return job, nil
}

func (s *Server) runReevaluation(ctx context.Context, job *reevaluationJob) {
	status := "completed"
	defer func() {
		job.cancel()
		s.metrics.RecordJob(status)
		s.jobMu.Lock()
		s.activeJob = nil
		s.jobMu.Unlock()
		close(job.done)
	}()

	start := time.Now()
	final, err := s.catalog.Reevaluate(ctx, func(p catalog.Progress) {
		event := ReevaluationEvent{
			Type:      "progress",
			JobID:     job.id,
			Total:     int64(p.Total),
			Processed: p.Processed,
			Approved:  p.Approved,
		}
		if p.Product != nil {
			dto := ProductFromModel(*p.Product)
			event.Product = &dto
		}
		s.notifier.Broadcast(event)
	})

	switch {
	case errors.Is(err, context.Canceled):
		status = "cancelled"
		s.notifier.Broadcast(ReevaluationEvent{
			Type:      "cancelled",
			JobID:     job.id,
			Total:     int64(final.Total),
			Processed: final.Processed,
			Approved:  final.Approved,
			Message:   "re-evaluation cancelled",
		})
		logrus.WithField("job", job.id).Warn("re-evaluation cancelled")
	case err != nil:
		status = "failed"
		s.notifier.Broadcast(ReevaluationEvent{
			Type:      "error",
			JobID:     job.id,
			Total:     int64(final.Total),
			Processed: final.Processed,
			Message:   err.Error(),
		})
		logrus.WithError(err).WithField("job", job.id).Error("re-evaluation failed")
	default:
		s.notifier.Broadcast(ReevaluationEvent{
			Type:      "complete",
			JobID:     job.id,
			Total:     int64(final.Total),
			Processed: final.Processed,
			Approved:  final.Approved,
			Message:   "re-evaluation complete",
		})
		logrus.WithFields(logrus.Fields{
			"job":       job.id,
			"processed": final.Processed,
			"approved":  final.Approved,
			"duration":  time.Since(start),
		}).Info("re-evaluation complete")
	}
}
