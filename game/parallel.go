package game

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/pthm-cable/convection/systems"
)

// defaultParallelThreshold is the minimum particle count to use the worker
// pool when the config leaves it unset. Below this, single-threaded is faster
// due to goroutine overhead.
const defaultParallelThreshold = 4096

// workChunk represents a range of particles for a worker to process.
type workChunk struct {
	slot       int // result and rng index
	start, end int
	fn         systems.ChunkFunc
}

// parallelState is a persistent worker pool that implements systems.Runner.
// Chunk i always uses rngs[i], so a given seed and worker count reproduce the
// same run.
type parallelState struct {
	numWorkers int
	threshold  int
	rngs       []*rand.Rand
	results    []systems.TickReport

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState(workers, threshold int, seed *rand.Rand) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	rngs := make([]*rand.Rand, workers)
	for i := range rngs {
		rngs[i] = rand.New(rand.NewSource(seed.Int63()))
	}
	return &parallelState{
		numWorkers: workers,
		threshold:  threshold,
		rngs:       rngs,
		results:    make([]systems.TickReport, workers),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.results[chunk.slot] = chunk.fn(chunk.start, chunk.end, p.rngs[chunk.slot])
			p.doneChan <- struct{}{}
		}
	}
}

// Run processes [0, n) single-threaded below the threshold, otherwise in one
// chunk per worker, and merges the chunk reports in slot order.
func (p *parallelState) Run(n int, fn systems.ChunkFunc) systems.TickReport {
	if n < p.threshold || p.numWorkers < 2 {
		return fn(0, n, p.rngs[0])
	}

	// Ensure workers are running
	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	// Dispatch chunks to workers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		p.results[w] = systems.TickReport{}
		p.workChan <- workChunk{slot: w, start: start, end: end, fn: fn}
		dispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}

	var total systems.TickReport
	for w := 0; w < dispatched; w++ {
		total.Merge(p.results[w])
	}
	return total
}
