package service

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/sirupsen/logrus"
)

// ClickDispatcherImpl records clicks off the request path. A full queue
// drops the click instead of slowing the redirect down.
type ClickDispatcherImpl struct {
	recorder     ClickRecorder
	queue        chan entity.ClickInput
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewClickDispatcher(recorder ClickRecorder, bufferSize, workers int, writeTimeout time.Duration) *ClickDispatcherImpl {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	d := &ClickDispatcherImpl{
		recorder:     recorder,
		queue:        make(chan entity.ClickInput, bufferSize),
		writeTimeout: writeTimeout,
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *ClickDispatcherImpl) Dispatch(in entity.ClickInput) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- in:
		return true
	default:
		logrus.WithField("short_code", in.ShortCode).Warn("click queue full, dropping click")
		return false
	}
}

// Close stops accepting clicks and waits for the queue to drain.
func (d *ClickDispatcherImpl) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *ClickDispatcherImpl) worker() {
	defer d.wg.Done()

	for in := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
		if err := d.recorder.RecordClick(ctx, in); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"short_code": in.ShortCode,
				"url_id":     in.URLID,
			}).Error("failed to record click")
		}
		cancel()
	}
}
