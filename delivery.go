package quiver

import "sync"

// ResponseDelivery marshals parsed responses and errors onto the
// callback context.
type ResponseDelivery interface {
	// PostResponse delivers a parsed response to the listener.
	PostResponse(r *Request, response *Response)
	// PostResponseAndThen delivers a parsed response and runs then on
	// the delivery context after the listener callback returns.
	PostResponseAndThen(r *Request, response *Response, then func())
	// PostError converts err into an error-flavored response and
	// delivers it through the same channel.
	PostError(r *Request, err error)
}

// ExecutorDelivery posts delivery tasks through an injected execute
// function, typically one that marshals onto the application's main
// goroutine or event loop.
type ExecutorDelivery struct {
	execute func(task func())
}

// NewExecutorDelivery returns a delivery running tasks via execute.
// execute must preserve submission order for the per-request ordering
// guarantees to hold.
func NewExecutorDelivery(execute func(task func())) *ExecutorDelivery {
	return &ExecutorDelivery{execute: execute}
}

func (d *ExecutorDelivery) PostResponse(r *Request, response *Response) {
	d.PostResponseAndThen(r, response, nil)
}

func (d *ExecutorDelivery) PostResponseAndThen(r *Request, response *Response, then func()) {
	r.markDelivered()
	r.addMarker("post-response")
	d.execute(func() {
		deliver(r, response, then)
	})
}

func (d *ExecutorDelivery) PostError(r *Request, err error) {
	r.addMarker("post-error")
	d.execute(func() {
		deliver(r, ErrorResponse(err), nil)
	})
}

// deliver runs on the delivery context.
func deliver(r *Request, response *Response, then func()) {
	// the request may have been canceled between post and execution
	if r.IsCanceled() {
		r.finish("canceled-at-delivery")
		return
	}

	if response.IsSuccess() {
		r.deliverResponse(response.Result)
	} else {
		r.deliverError(response.Err)
	}

	if response.Intermediate {
		// the network refresh still owes the terminal delivery
		r.addMarker("intermediate-response")
	} else {
		r.finish("done")
	}

	if then != nil {
		then()
	}
}

// serialExecutor runs tasks one at a time on a dedicated goroutine,
// in submission order. It is the default delivery context when none
// is injected.
type serialExecutor struct {
	mu    sync.Mutex
	cond  *sync.Cond
	tasks []func()
	quit  bool
	done  chan struct{}
}

func newSerialExecutor() *serialExecutor {
	e := &serialExecutor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *serialExecutor) execute(task func()) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	e.cond.Signal()
}

// run processes tasks until stop is called and the backlog is drained.
func (e *serialExecutor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.tasks) == 0 && !e.quit {
			e.cond.Wait()
		}
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()
		task()
	}
}

// stop drains pending tasks and then shuts the run loop down.
// It returns once the loop has exited.
func (e *serialExecutor) stop() {
	e.mu.Lock()
	e.quit = true
	e.mu.Unlock()
	e.cond.Broadcast()
	<-e.done
}
