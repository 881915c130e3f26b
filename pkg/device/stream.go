// Package device simulates the asynchronous, stream-ordered GPU execution
// model the split-finding pipeline is built around: work is issued to a
// stream without blocking the caller, stages within one stream execute in
// issue order, and the host only blocks at an explicit Synchronize call.
// There is no CUDA runtime available to this module, so a Stream is backed
// by a single worker goroutine draining an ordered queue of kernel launches
// instead of a physical GPU queue — the ordering and suspension-point
// contract is identical, which is what the split-finding pipeline actually
// depends on.
package device

import "sync"

// Kernel is a unit of work queued onto a Stream. Kernels are free to do
// whatever host-side computation stands in for GPU work (permute, sort,
// scan, evaluate) — the Stream only guarantees issue-order execution and a
// synchronization point.
type Kernel func()

// Stream executes queued Kernels strictly in issue order on a private
// goroutine, mirroring a CUDA stream's ordering guarantee.
type Stream struct {
	work chan Kernel
	done chan struct{}
	wg   sync.WaitGroup
}

// NewStream starts a stream's worker goroutine. Callers must eventually
// call Close once the stream is no longer needed.
func NewStream(bufferSize int) *Stream {
	if bufferSize < 1 {
		bufferSize = 1
	}
	s := &Stream{
		work: make(chan Kernel, bufferSize),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Stream) loop() {
	defer s.wg.Done()
	for {
		select {
		case k, ok := <-s.work:
			if !ok {
				return
			}
			k()
		case <-s.done:
			// Drain any already-queued kernels before exiting so a
			// Close immediately following the last Launch still
			// completes queued work deterministically.
			for {
				select {
				case k, ok := <-s.work:
					if !ok {
						return
					}
					k()
				default:
					return
				}
			}
		}
	}
}

// Launch enqueues a kernel for asynchronous execution. It never blocks the
// caller on the kernel's completion.
func (s *Stream) Launch(k Kernel) {
	s.work <- k
}

// Synchronize blocks until every kernel launched before this call has
// finished executing. This is the pipeline's only host-blocking primitive.
func (s *Stream) Synchronize() {
	sig := make(chan struct{})
	s.work <- func() { close(sig) }
	<-sig
}

// Close stops the stream's worker goroutine after draining queued kernels.
func (s *Stream) Close() {
	close(s.done)
	s.wg.Wait()
}
