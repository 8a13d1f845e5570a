package dispatch

// job is one unit of work submitted to the dispatcher's single cooperative
// task loop. Every backend call the dispatcher makes is serialized through
// this loop, so two host callbacks never race against the same backend
// handle (spec.md §5).
type job struct {
	fn   func()
	done chan struct{}
}

func (d *Dispatcher) loop() {
	for j := range d.jobs {
		j.fn()
		close(j.done)
	}
}

// run schedules fn on the dispatcher's single task goroutine and blocks
// until it has completed.
func (d *Dispatcher) run(fn func()) {
	j := job{fn: fn, done: make(chan struct{})}
	d.jobs <- j
	<-j.done
}

// Close stops the dispatcher's task loop. Pending jobs already queued are
// still run before the loop exits.
func (d *Dispatcher) Close() {
	close(d.jobs)
	<-d.stopped
}
