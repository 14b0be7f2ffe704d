package dispatch

import (
	"context"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

func registerJobs(d *Dispatcher, repo repository.JobRepository, queue JobQueue) {
	// jobs:enqueue(jobType, listingId?, scheduledFor?)
	d.Register("jobs:enqueue", func(ctx context.Context, args Args) (any, error) {
		jobType, err := args.String(0)
		if err != nil {
			return nil, err
		}
		var listingID *int64
		if _, err := args.Optional(1, &listingID); err != nil {
			return nil, err
		}
		var at time.Time
		if _, err := args.Optional(2, &at); err != nil {
			return nil, err
		}
		if queue == nil {
			return nil, model.NewValidationError("Job queue is not available", "job_type")
		}
		return queue.Enqueue(ctx, jobType, listingID, at)
	})
	d.Register("jobs:findById", func(ctx context.Context, args Args) (any, error) {
		id, err := args.ID(0)
		if err != nil {
			return nil, err
		}
		job, err := repo.FindByID(ctx, id)
		return orNotFound(job, err, "Job")
	})
	d.Register("jobs:findAll", func(ctx context.Context, args Args) (any, error) {
		var filter model.JobFilter
		if _, err := args.Optional(0, &filter); err != nil {
			return nil, err
		}
		return repo.FindAll(ctx, filter)
	})
	d.RegisterFlag("jobs:cancel", func(ctx context.Context, args Args) (bool, error) {
		id, err := args.ID(0)
		if err != nil {
			return false, err
		}
		return repo.Cancel(ctx, id)
	})
	d.Register("jobs:count", func(ctx context.Context, args Args) (any, error) {
		var filter model.JobFilter
		if _, err := args.Optional(0, &filter); err != nil {
			return nil, err
		}
		return repo.Count(ctx, filter)
	})
}

func registerSystem(d *Dispatcher, s *Services) {
	d.Register("system:getAppVersion", func(context.Context, Args) (any, error) {
		return s.Version, nil
	})
	d.Register("system:getPaths", func(context.Context, Args) (any, error) {
		return s.Paths, nil
	})
	d.Register("system:listEndpoints", func(context.Context, Args) (any, error) {
		return d.Channels(), nil
	})
}
