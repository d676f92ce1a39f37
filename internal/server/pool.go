package server

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 128

// WorkerFunction processes one task; a non-nil error kills the tomb,
// bringing every other worker down with it.
type WorkerFunction func(t *tomb.Tomb, task any) error

// WorkerPool maintains a fixed number of goroutines pulling from a shared
// task channel, supervised by a tomb so a single worker's fatal error
// shuts the whole pool down cleanly.
type WorkerPool struct {
	size  int
	tasks chan any
}

// NewWorkerPool constructs a pool with the given number of workers.
func NewWorkerPool(size int) *WorkerPool {
	return &WorkerPool{
		size:  size,
		tasks: make(chan any, taskChanSize),
	}
}

// AddTask enqueues a unit of work for the next free worker.
func (p *WorkerPool) AddTask(task any) {
	p.tasks <- task
}

// Run starts size workers under t, each looping work() until t dies.
func (p *WorkerPool) Run(t *tomb.Tomb, work WorkerFunction) {
	log.Info().Int("workers", p.size).Msg("starting worker pool")
	for i := 0; i < p.size; i++ {
		t.Go(func() error {
			return p.runWorker(t, work)
		})
	}
}

func (p *WorkerPool) runWorker(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker exiting on fatal error")
				return err
			}
		}
	}
}
