package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// ParallelConfig holds configuration for multi-card processing.
type ParallelConfig struct {
	MaxWorkers       int                      // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback         // Optional progress reporting
	ErrorHandler     func(int, string, error) // Optional per-item error handler (index, source)
}

// DefaultParallelConfig returns defaults for multi-card processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// ItemResult is the outcome of one card in a multi-card run. Err is set
// when the card could not be loaded; pipeline failures are reported in
// Result.Status instead.
type ItemResult struct {
	Index  int
	Source string
	Result *Result
	Err    error
}

type job struct {
	index  int
	source string
	run    func(context.Context) (*Result, error)
}

// ProcessImagesParallel processes images concurrently with the configured
// languages. Results are returned in input order.
func (p *Pipeline) ProcessImagesParallel(ctx context.Context, images []ocr.Image, config ParallelConfig) ([]ItemResult, error) {
	jobs := make([]job, len(images))
	for i, img := range images {
		jobs[i] = job{index: i, source: img.Name, run: func(ctx context.Context) (*Result, error) {
			return p.ProcessImage(ctx, img)
		}}
	}
	return p.runParallel(ctx, jobs, config)
}

// ProcessFilesParallel loads and processes files concurrently. Results are
// returned in input order; the first load error is also returned.
func (p *Pipeline) ProcessFilesParallel(ctx context.Context, paths []string, config ParallelConfig) ([]ItemResult, error) {
	jobs := make([]job, len(paths))
	for i, path := range paths {
		jobs[i] = job{index: i, source: path, run: func(ctx context.Context) (*Result, error) {
			return p.ProcessFile(ctx, path)
		}}
	}
	return p.runParallel(ctx, jobs, config)
}

func (p *Pipeline) runParallel(ctx context.Context, jobs []job, config ParallelConfig) ([]ItemResult, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no images provided")
	}
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.MaxWorkers > len(jobs) {
		config.MaxWorkers = len(jobs)
	}

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(jobs))
		defer config.ProgressCallback.OnComplete()
	}

	queue := make(chan job, len(jobs))
	results := make(chan ItemResult, len(jobs))

	var wg sync.WaitGroup
	for range config.MaxWorkers {
		wg.Add(1)
		go worker(ctx, queue, results, &wg)
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]ItemResult, len(jobs))
	processed := 0
	for r := range results {
		ordered[r.Index] = r
		processed++
		if config.ProgressCallback != nil {
			if r.Err != nil {
				config.ProgressCallback.OnError(processed, r.Err)
			}
			config.ProgressCallback.OnProgress(processed, len(jobs))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstError error
	for i, r := range ordered {
		if r.Err == nil {
			continue
		}
		if firstError == nil {
			firstError = fmt.Errorf("image %d: %w", i, r.Err)
		}
		if config.ErrorHandler != nil {
			config.ErrorHandler(i, r.Source, r.Err)
		}
	}
	return ordered, firstError
}

func worker(ctx context.Context, queue <-chan job, results chan<- ItemResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case j, ok := <-queue:
			if !ok {
				return
			}
			res, err := j.run(ctx)
			select {
			case results <- ItemResult{Index: j.index, Source: j.source, Result: res, Err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ParallelStats holds statistics about a multi-card run.
type ParallelStats struct {
	TotalImages      int            `json:"total_images"`
	ProcessedImages  int            `json:"processed_images"`
	FailedImages     int            `json:"failed_images"`
	StatusCounts     map[Status]int `json:"status_counts"`
	WorkerCount      int            `json:"worker_count"`
	TotalDuration    time.Duration  `json:"total_duration_ns"`
	AveragePerImage  time.Duration  `json:"average_per_image_ns"`
	ThroughputPerSec float64        `json:"throughput_per_sec"`
}

// CalculateParallelStats summarizes results of a multi-card run.
func CalculateParallelStats(results []ItemResult, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{
		TotalImages:   len(results),
		StatusCounts:  map[Status]int{},
		WorkerCount:   workerCount,
		TotalDuration: duration,
	}
	for _, r := range results {
		if r.Err != nil || r.Result == nil {
			stats.FailedImages++
			continue
		}
		stats.ProcessedImages++
		stats.StatusCounts[r.Result.Status]++
	}
	if stats.ProcessedImages > 0 {
		stats.AveragePerImage = duration / time.Duration(stats.ProcessedImages)
		if duration > 0 {
			stats.ThroughputPerSec = float64(stats.ProcessedImages) / duration.Seconds()
		}
	}
	return stats
}
