package chatsync

import "sync"

// eventLoop runs posted tasks one at a time on its own goroutine. Posting
// never blocks, so store listeners can hand work over without waiting on
// the loop.
type eventLoop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	wake   chan struct{}
	quit   chan struct{}
	exited chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

// post queues task. It reports false once the loop is stopped.
func (l *eventLoop) post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *eventLoop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			batch := l.tasks
			l.tasks = nil
			l.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, task := range batch {
				task()
			}
		}
	}
}

// stop drops queued tasks and waits for the running one to return. It must
// not be called from a task.
func (l *eventLoop) stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.tasks = nil
		close(l.quit)
	}
	l.mu.Unlock()
	<-l.exited
}
