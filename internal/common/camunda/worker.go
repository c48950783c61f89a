package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"movie-recommender/internal/common/logger"
)

// JobHandler completes or fails the job itself; the returned error is only
// logged.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// WorkerOptions tune one job subscription. Zero values keep the Zeebe
// client defaults.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

func NewWorker(client zbc.Client, taskType string, opts WorkerOptions, handler JobHandler, log logger.Logger) *Worker {
	l := log.WithFields(map[string]interface{}{"taskType": taskType})

	step := client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			if err := handler.Handle(jc, job); err != nil {
				l.Error("handler returned error", map[string]interface{}{"error": err, "jobKey": job.Key})
			}
		})
	if opts.MaxJobsActive > 0 {
		step = step.MaxJobsActive(opts.MaxJobsActive)
	}
	if opts.Timeout > 0 {
		step = step.Timeout(opts.Timeout)
	}

	w := &Worker{worker: step.Open(), logger: l, taskType: taskType}
	l.Info("worker started", nil)
	return w
}

// Stop closes the subscription and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
