package health

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe"
)

// executor runs probes on a bounded worker pool so one slow replica
// cannot stall the scheduling loop.
type executor struct {
	concurrency uint16
	inputChan   chan *probeJob

	// closed by atomic
	closed     int64
	inProgress int64
	close      chan struct{}
}

type probeJob struct {
	replica models.ReplicaID
	prober  probe.Prober
	timeout time.Duration
	apply   func(models.ProbeResult)
}

func newExecutor(concurrency uint16, buffer uint32) *executor {
	return &executor{
		inputChan:   make(chan *probeJob, buffer),
		close:       make(chan struct{}),
		concurrency: concurrency,
	}
}

func (e *executor) Run() {
	for i := range e.concurrency {
		go func() {
			for job := range e.inputChan {
				log.Debug().Msgf("executor [%d] probing replica %s", i, job.replica)
				job.apply(runProbe(job))
			}
		}()
	}
}

// runProbe executes one probe bounded by its timeout. Exceeding the
// timeout counts as a failure.
func runProbe(job *probeJob) models.ProbeResult {
	ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
	defer cancel()

	start := time.Now()
	err := job.prober.Probe(ctx)
	latency := time.Since(start)

	return models.ProbeResult{
		Replica: job.replica,
		At:      start,
		Success: err == nil,
		Latency: latency,
		Err:     err,
	}
}

func (e *executor) Execute(job *probeJob) error {
	if atomic.LoadInt64(&e.closed) == 1 {
		return fmt.Errorf("executor already closed")
	}
	atomic.AddInt64(&e.inProgress, 1)
	defer atomic.AddInt64(&e.inProgress, -1)

	select {
	case e.inputChan <- job:
		return nil
	case <-e.close:
		return fmt.Errorf("failed to send probe to executor: closed")
	}
}

func (e *executor) Close() {
	atomic.AddInt64(&e.closed, 1)
	close(e.close)
	for atomic.LoadInt64(&e.inProgress) != 0 {
		runtime.Gosched()
	}
	close(e.inputChan)
}
