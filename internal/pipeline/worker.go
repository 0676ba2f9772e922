package pipeline

import (
	"os"
	"sync"
	"time"

	"github.com/voxtail/voxtail/internal/ledger"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/model"
	"github.com/voxtail/voxtail/internal/sink"
	"github.com/voxtail/voxtail/internal/stt"
	"github.com/voxtail/voxtail/internal/watch"
)

const (
	retryBackoffBase = 2 * time.Second
	retryBackoffMax  = 30 * time.Second
)

// Models is the slice of the model manager the workers need.
type Models interface {
	Acquire(modelName string) (*model.Handle, error)
	Release(h *model.Handle)
}

// Pool runs the transcription workers. Each worker owns one file at a
// time end to end: claim, transcribe, commit or fail, deliver.
type Pool struct {
	queue      *Queue
	ledger     *ledger.Ledger
	models     Models
	out        *sink.Sink
	modelName  string
	maxRetries int

	backoffBase time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPool(q *Queue, l *ledger.Ledger, m Models, out *sink.Sink, modelName string, maxRetries int) *Pool {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Pool{
		queue:       q,
		ledger:      l,
		models:      m,
		out:         out,
		modelName:   modelName,
		maxRetries:  maxRetries,
		backoffBase: retryBackoffBase,
		stopCh:      make(chan struct{}),
	}
}

// Start launches n workers.
func (p *Pool) Start(n int) {
	if n < 1 {
		n = 1
	}
	L_info("pipeline: starting workers", "workers", n, "model", p.modelName)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Drain closes the queue and waits for workers to finish what they
// hold. Files still queued are processed; files mid-retry abort at the
// next backoff and stay in_progress for startup recovery.
func (p *Pool) Drain() {
	close(p.stopCh)
	p.queue.Close()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for f := range p.queue.Chan() {
		p.process(id, f)
	}
	L_debug("pipeline: worker exiting", "worker", id)
}

// process handles one settled file. The ledger claim is the only
// exactly-once gate; everything after a lost claim is skipped.
func (p *Pool) process(id int, f watch.SettledFile) {
	identity := f.Identity()

	claimed, err := p.ledger.Claim(identity, f.Path, f.Size, f.ModTime)
	if err != nil {
		L_error("pipeline: ledger claim failed", "path", f.Path, "error", err)
		return
	}
	if !claimed {
		L_debug("pipeline: already handled, skipping", "path", f.Path)
		return
	}

	// The file may have been deleted between settling and dequeue.
	if _, err := os.Stat(f.Path); err != nil {
		L_warn("pipeline: file vanished before transcription", "path", f.Path)
		p.fail(identity, f.Path)
		return
	}

	handle, err := p.acquireWithRetry(identity, f.Path)
	if err != nil {
		if stt.IsTransient(err) && p.stopping() {
			// Left in_progress on purpose; recovery requeues it.
			L_info("pipeline: shutdown during model load, leaving for recovery", "path", f.Path)
			return
		}
		L_error("pipeline: model load failed", "model", p.modelName, "error", err)
		p.fail(identity, f.Path)
		return
	}
	defer p.models.Release(handle)

	L_info("pipeline: transcribing", "worker", id, "path", f.Path)
	start := time.Now()

	text, audioDur, err := p.transcribeWithRetry(identity, handle, f.Path)
	if err != nil {
		if stt.IsTransient(err) && p.stopping() {
			L_info("pipeline: shutdown during retry, leaving for recovery", "path", f.Path)
			return
		}
		L_error("pipeline: transcription failed", "path", f.Path, "error", err)
		p.fail(identity, f.Path)
		return
	}

	if err := p.ledger.Commit(identity, text); err != nil {
		L_error("pipeline: ledger commit failed", "path", f.Path, "error", err)
		return
	}
	L_elapsed(start, "pipeline: transcribed", "path", f.Path, "chars", len(text))

	p.out.Deliver(sink.Result{
		Path:          f.Path,
		Text:          text,
		AudioDuration: audioDur,
		Elapsed:       time.Since(start),
		FinishedAt:    time.Now(),
	})
}

// acquireWithRetry loads the model, retrying transient failures
// (momentary memory pressure) with the same bounded backoff as
// inference. Permanent failures (missing model file) return at once.
func (p *Pool) acquireWithRetry(identity, path string) (*model.Handle, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		handle, err := p.models.Acquire(p.modelName)
		if err == nil {
			return handle, nil
		}
		if stt.IsPermanent(err) {
			return nil, err
		}
		lastErr = err

		if attempt == p.maxRetries {
			break
		}
		p.bumpAttempts(identity, path)
		L_warn("pipeline: transient model load failure, retrying", "model", p.modelName,
			"attempt", attempt, "error", err)
		if !p.waitBackoff(attempt) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// transcribeWithRetry retries transient failures with capped
// exponential backoff. Permanent failures return immediately.
func (p *Pool) transcribeWithRetry(identity string, handle *model.Handle, path string) (string, time.Duration, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		text, audioDur, err := handle.Transcribe(path)
		if err == nil {
			return text, audioDur, nil
		}
		if stt.IsPermanent(err) {
			return "", 0, err
		}
		lastErr = err

		if attempt == p.maxRetries {
			break
		}
		p.bumpAttempts(identity, path)
		L_warn("pipeline: transient failure, retrying", "path", path,
			"attempt", attempt, "error", err)
		if !p.waitBackoff(attempt) {
			return "", 0, lastErr
		}
	}
	return "", 0, lastErr
}

// waitBackoff sleeps the capped exponential delay for the given
// attempt. Returns false when shutdown interrupted the wait.
func (p *Pool) waitBackoff(attempt int) bool {
	backoff := p.backoffBase << (attempt - 1)
	if backoff > retryBackoffMax {
		backoff = retryBackoffMax
	}
	select {
	case <-p.stopCh:
		return false
	case <-time.After(backoff):
		return true
	}
}

func (p *Pool) fail(identity, path string) {
	if err := p.ledger.Fail(identity); err != nil {
		L_error("pipeline: ledger fail failed", "path", path, "error", err)
	}
}

func (p *Pool) bumpAttempts(identity, path string) {
	if err := p.ledger.BumpAttempts(identity); err != nil {
		L_warn("pipeline: attempt bump failed", "path", path, "error", err)
	}
}

func (p *Pool) stopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}
