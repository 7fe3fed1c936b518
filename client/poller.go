package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/optilab/optilab-api/internal/domain/model"
)

// DefaultPollInterval is the status polling cadence when none is configured.
const DefaultPollInterval = time.Second

// ErrNoActiveRun is returned by Cancel when no run has been started.
var ErrNoActiveRun = errors.New("no active run")

// PollState is the poller's lifecycle state.
type PollState string

const (
	// StateIdle means no polling loop is running. Freshly constructed
	// pollers and locally cancelled runs are Idle.
	StateIdle PollState = "idle"
	// StatePolling means a submitted job is being watched.
	StatePolling PollState = "polling"
	// StateTerminal means the last run finished: a terminal status was
	// observed or polling was abandoned on an unrecoverable error.
	StateTerminal PollState = "terminal"
)

// Update is one observation in the stream Run returns. The stream is
// conflated: a slow consumer skips intermediate snapshots but always receives
// the final one, after which the channel closes.
//
// Exactly one of the final fields is meaningful: Result on completed runs,
// Err on failed runs (the solver's message verbatim) or abandoned polling,
// Notice on cancelled runs.
type Update struct {
	JobID    string
	Status   model.JobStatus
	Progress *model.JobProgress
	Result   *model.RunDetail
	Notice   string
	Err      error
}

// Terminal reports whether the update carries a terminal job status.
func (u Update) Terminal() bool { return u.Status.Terminal() }

// PollerOptions configures a Poller.
type PollerOptions struct {
	Client   *Client
	Interval time.Duration // defaults to DefaultPollInterval
	Logger   *slog.Logger
}

// Poller watches one solve job at a time: submit, poll status on a fixed
// cadence until terminal, fetch the stored result once on completion. It
// replaces ad-hoc timer callbacks with an explicit Idle/Polling/Terminal
// machine whose cancellation is owned here, not by callers.
type Poller struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger

	// runMu serializes Run and Cancel so two callers cannot race on the
	// loop lifecycle. mu guards the snapshot fields State/JobID read.
	runMu sync.Mutex

	mu     sync.Mutex
	state  PollState
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller validates opts and constructs an idle Poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Client == nil {
		return nil, errors.New("Client is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   opts.Client,
		interval: interval,
		logger:   resolveLogger(opts.Logger),
		state:    StateIdle,
	}, nil
}

// State returns the current machine state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// JobID returns the most recently submitted job's identifier, empty before
// the first successful Run.
func (p *Poller) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

// Run submits the request and starts polling. Submission errors are returned
// synchronously and no job exists then. A loop from a previous Run is stopped
// before the new submission so two pollers never watch jobs concurrently.
//
// The returned channel streams status updates and closes after the final one.
// Cancelling ctx stops the loop without a terminal update.
func (p *Poller) Run(ctx context.Context, req *model.SolveRequest) (<-chan Update, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.stopActiveLoop()

	jobID, err := p.client.SubmitRun(ctx, req)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Update, 1)
	done := make(chan struct{})

	p.mu.Lock()
	p.state = StatePolling
	p.jobID = jobID
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.loop(loopCtx, jobID, ch, done)
	return ch, nil
}

// Cancel stops the local polling loop first, then asks the server to cancel
// the job. The local loop stays stopped even when the server request fails;
// the error only reports the server side.
func (p *Poller) Cancel(ctx context.Context) (*model.CancelOutcome, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	jobID := p.jobID
	p.mu.Unlock()
	if jobID == "" {
		return nil, ErrNoActiveRun
	}

	p.stopActiveLoop()

	outcome, err := p.client.CancelJob(ctx, jobID)
	if err != nil {
		p.logger.WarnContext(ctx, "server cancel failed after local polling stopped",
			"job_id", jobID, "error", err)
		return nil, err
	}
	return outcome, nil
}

// stopActiveLoop cancels the running loop, if any, and waits for it to exit.
// Callers hold runMu.
func (p *Poller) stopActiveLoop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// loop drives the ticker until a terminal status, an unrecoverable error or
// context cancellation. It owns ch: the final update is emitted here and the
// channel closed exactly once.
func (p *Poller) loop(ctx context.Context, jobID string, ch chan Update, done chan struct{}) {
	finish := StateIdle
	defer func() {
		p.mu.Lock()
		p.state = finish
		p.mu.Unlock()
		close(ch)
		close(done)
	}()

	// Immediate feedback: the job is queued the moment submission returns.
	emit(ch, Update{JobID: jobID, Status: model.JobStatusQueued})
	lastStatus := model.JobStatusQueued
	lastProgress := ""

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := p.client.JobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if transientError(err) {
				// Same cadence, no backoff: the next tick retries.
				p.logger.WarnContext(ctx, "status poll failed, retrying",
					"job_id", jobID, "error", err)
				continue
			}
			emit(ch, Update{JobID: jobID, Status: lastStatus, Err: err, Notice: "polling abandoned"})
			finish = StateTerminal
			return
		}

		if !snap.Status.Terminal() {
			progress := progressKey(snap.Progress)
			if snap.Status != lastStatus || progress != lastProgress {
				lastStatus = snap.Status
				lastProgress = progress
				emit(ch, Update{JobID: jobID, Status: snap.Status, Progress: snap.Progress})
			}
			continue
		}

		emit(ch, p.terminalUpdate(ctx, jobID, snap))
		finish = StateTerminal
		return
	}
}

// terminalUpdate builds the final stream element. Completed jobs trigger the
// one extra fetch of the stored run; the status snapshot alone has no
// objective value or variable table.
func (p *Poller) terminalUpdate(ctx context.Context, jobID string, snap *model.JobStatusSnapshot) Update {
	u := Update{JobID: jobID, Status: snap.Status, Progress: snap.Progress}

	switch snap.Status {
	case model.JobStatusCompleted:
		if snap.ResultID == nil {
			u.Err = errors.New("job completed without a result id")
			return u
		}
		detail, err := p.client.Result(ctx, *snap.ResultID)
		if err != nil {
			u.Err = fmt.Errorf("fetch result %d: %w", *snap.ResultID, err)
			return u
		}
		u.Result = detail
	case model.JobStatusFailed:
		if snap.Error != nil && *snap.Error != "" {
			u.Err = errors.New(*snap.Error)
		} else {
			u.Err = errors.New("solve failed")
		}
	case model.JobStatusCancelled:
		u.Notice = "solve cancelled"
	default:
		u.Notice = fmt.Sprintf("job finished with status %s", snap.Status)
	}
	return u
}

// emit replaces any unread update so the consumer always observes the most
// recent snapshot. With a single producer per channel the send cannot block.
func emit(ch chan Update, u Update) {
	select {
	case <-ch:
	default:
	}
	ch <- u
}

// transientError reports whether a poll failure should be retried. Transport
// errors and server-side failures are transient; client-side rejections
// (unknown job, auth) will not heal on retry.
func transientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func progressKey(p *model.JobProgress) string {
	if p == nil {
		return ""
	}
	return p.Stage + "|" + p.Message
}
