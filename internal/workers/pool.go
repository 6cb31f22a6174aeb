// Package workers implements the two background workers named in §5:
// the Summary worker (single-slot queue) and the Decay worker (single-
// slot, single-flight). Neither mutates conversation state directly —
// Summary publishes into a mutex-protected slot the Conversation Manager
// reads next turn, Decay only ever touches the Memory Engine's own
// storage. Grounded on manifold's graceful-shutdown idiom in
// cmd/agentd/main.go (errgroup.Group bound to a cancellable context,
// drained with wait=true on Shutdown).
package workers

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Pool owns the Summary and Decay workers' goroutines and drains them on
// shutdown. Nothing outside this package touches the underlying
// errgroup directly.
type Pool struct {
	summary *SummaryWorker
	decay   *DecayWorker

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPool wires summary and decay into one managed pool. Either may be
// nil if that worker isn't configured (e.g. memory disabled entirely).
func NewPool(summary *SummaryWorker, decay *DecayWorker) *Pool {
	return &Pool{summary: summary, decay: decay}
}

// Start launches both workers' run loops under one errgroup bound to a
// child of ctx, so Shutdown can cancel both without the caller having to
// track two separate contexts.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)
	p.cancel = cancel
	p.group = group

	if p.summary != nil {
		group.Go(func() error {
			log.Debug().Msg("workers: summary worker started")
			return p.summary.Run(runCtx)
		})
	}
	if p.decay != nil {
		group.Go(func() error {
			log.Debug().Msg("workers: decay worker started")
			return p.decay.Run(runCtx)
		})
	}
}

// Shutdown cancels both run loops and waits for their current unit of
// work to finish (§5: "executors are drained on shutdown with wait=true").
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summary exposes the Summary worker so the Conversation Manager can
// submit tasks and read the new_summary slot.
func (p *Pool) Summary() *SummaryWorker { return p.summary }

// Decay exposes the Decay worker so the Conversation Manager can submit
// a decay task once its turn counter reaches the configured interval.
func (p *Pool) Decay() *DecayWorker { return p.decay }
