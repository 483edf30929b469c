package relay

import "github.com/caststream/termcastd/internal/auth"

// hashJob asks a worker to run the (deliberately slow) Argon2id check for one
// caster's handshake.
type hashJob struct {
	handle   Handle
	name     string
	password string
}

// hashWorkerPool runs credential checks on a small fixed goroutine pool so
// the loop goroutine is never blocked computing a hash. Results are posted
// back onto the same event channel the loop already drains, matching the
// "HandshakePending" control-channel handoff spec.md §9 calls for.
type hashWorkerPool struct {
	jobs chan hashJob
}

func startHashWorkers(n int, store *auth.Store, out chan<- event) *hashWorkerPool {
	p := &hashWorkerPool{jobs: make(chan hashJob, 64)}
	for i := 0; i < n; i++ {
		go func() {
			for job := range p.jobs {
				err := store.Login(job.name, job.password)
				out <- hashResultEvent{handle: job.handle, name: job.name, err: err}
			}
		}()
	}
	return p
}

func (p *hashWorkerPool) submit(job hashJob) {
	p.jobs <- job
}

func (p *hashWorkerPool) stop() {
	close(p.jobs)
}
