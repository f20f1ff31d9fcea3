package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Transmit queue - hold chat messages for transmission until
 *		the channel has been quiet long enough.
 *
 * Description:	Producers of messages call Submit or SubmitAck and then
 *		go merrily on their way, unconcerned about when the frame might
 *		actually get transmitted.
 *
 *		Another goroutine (Run) takes them off the queue, oldest first,
 *		and hands them to the link.  Two transmissions never start closer
 *		together than the configured spacing.  Hearing something from the
 *		radio pushes the next start further out, the same way, so we
 *		don't step on a station that just started talking.
 *
 *		The KISS TNC does its own carrier sense (PERSIST & SLOTTIME).
 *		This is only to keep a chatty user from flooding the channel.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrSchedulerStopped is the failure of jobs still queued when the scheduler stops.
var ErrSchedulerStopped = errors.New("transmit scheduler stopped")

// FrameSender is the part of a link the scheduler needs.
type FrameSender interface {
	Send(frame []byte) error
}

type JobState int

const (
	JOB_QUEUED JobState = iota
	JOB_SENDING
	JOB_SENT
	JOB_FAILED
)

func (s JobState) String() string {
	switch s {
	case JOB_QUEUED:
		return "queued"
	case JOB_SENDING:
		return "sending"
	case JOB_SENT:
		return "sent"
	case JOB_FAILED:
		return "failed"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// TransmitJob tracks one message through the queue.
type TransmitJob struct {
	Message ChatMessage /* ID is filled in by Submit. */

	frame []byte /* Encoded AX.25 frame, ready for the link. */

	mu      sync.Mutex
	state   JobState
	err     error
	started time.Time
	done    chan struct{}
}

func new_job(m ChatMessage, frame []byte) *TransmitJob {
	return &TransmitJob{
		Message: m,
		frame:   frame,
		state:   JOB_QUEUED,
		done:    make(chan struct{}),
	}
}

func (j *TransmitJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err is nil unless the job failed.
func (j *TransmitJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Started is when the frame was handed to the link.
func (j *TransmitJob) Started() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

// Done is closed when the job is Sent or Failed.
func (j *TransmitJob) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its error.
func (j *TransmitJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *TransmitJob) set_sending(t time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = JOB_SENDING
	j.started = t
}

func (j *TransmitJob) finish(err error) {
	j.mu.Lock()
	if j.state == JOB_SENT || j.state == JOB_FAILED {
		j.mu.Unlock()
		return
	}
	if err != nil {
		j.state = JOB_FAILED
		j.err = err
	} else {
		j.state = JOB_SENT
	}
	j.mu.Unlock()

	close(j.done)
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(l *log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithQueuedHook is called with each new job, before the worker can see it.
func WithQueuedHook(f func(*TransmitJob)) SchedulerOption {
	return func(s *Scheduler) {
		s.on_queued = f
	}
}

// WithFinishedHook is called from the worker after each job is Sent or Failed.
func WithFinishedHook(f func(*TransmitJob)) SchedulerOption {
	return func(s *Scheduler) {
		s.on_finished = f
	}
}

type Scheduler struct {
	sender  FrameSender
	source  Callsign
	spacing time.Duration
	logger  *log.Logger

	on_queued   func(*TransmitJob)
	on_finished func(*TransmitJob)

	mu         sync.Mutex /* Critical section for everything below. */
	queue      []*TransmitJob
	next_id    uint16    /* Wraps around at 65536 by itself. */
	last_start time.Time /* Start of most recent transmission. */
	not_before time.Time /* Last channel activity plus spacing. */
	stopped    bool

	wake chan struct{} /* Notify worker when queue or timing changed. */
}

/*-------------------------------------------------------------------
 *
 * Name:        NewScheduler
 *
 * Inputs:	sender	- Where frames go.  Usually a *Link.
 *
 *		source	- Our callsign, used as the source address.
 *
 *		spacing	- Minimum time between the start of two transmissions,
 *			  and between hearing something and transmitting.
 *
 *--------------------------------------------------------------------*/

func NewScheduler(sender FrameSender, source Callsign, spacing time.Duration, opts ...SchedulerOption) *Scheduler {
	var s = &Scheduler{
		sender:  sender,
		source:  source,
		spacing: max(spacing, 0),
		logger:  log.New(io.Discard),
		wake:    make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

/*-------------------------------------------------------------------
 *
 * Name:        Submit
 *
 * Purpose:     Add a chat message to the end of the transmit queue.
 *
 * Inputs:	m	- Destination, Text and Compression are used.
 *			  Sender, Type and ID are filled in here.
 *
 * Returns:	The job, with Message.ID assigned.  Error if the message
 *		can't be encoded or the scheduler has stopped.  No id is
 *		used up in that case.
 *
 *--------------------------------------------------------------------*/

func (s *Scheduler) Submit(m ChatMessage) (*TransmitJob, error) {
	m.Sender = s.source
	m.Type = MSG

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrSchedulerStopped
	}

	m.ID = s.next_id

	var frame, err = s.encode(m)
	if err != nil {
		return nil, err
	}

	s.next_id++

	return s.append_locked(m, frame), nil
}

/*-------------------------------------------------------------------
 *
 * Name:        SubmitAck
 *
 * Purpose:     Queue an acknowledgement for a message we received.
 *
 * Inputs:	to	- Station that sent the message.
 *
 *		id	- Its message id, not ours.
 *
 *--------------------------------------------------------------------*/

func (s *Scheduler) SubmitAck(to Callsign, id uint16) (*TransmitJob, error) {
	var m = ChatMessage{
		Sender:      s.source,
		Destination: to,
		Type:        ACK,
		Compression: COMPRESSION_NONE,
		ID:          id,
	}

	var frame, err = s.encode(m)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrSchedulerStopped
	}

	return s.append_locked(m, frame), nil
}

func (s *Scheduler) encode(m ChatMessage) ([]byte, error) {
	var info, err = EncodePayload(&m)
	if err != nil {
		return nil, err
	}
	return ax25_pack(NewUIFrame(m.Destination, m.Sender, nil, info))
}

func (s *Scheduler) append_locked(m ChatMessage, frame []byte) *TransmitJob {
	var job = new_job(m, frame)

	if s.on_queued != nil {
		s.on_queued(job)
	}

	s.queue = append(s.queue, job)
	s.signal()

	return job
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        MarkChannelActivity
 *
 * Purpose:     Tell the scheduler we heard something at time t.
 *
 * Description:	The next transmission won't start before t + spacing.
 *		This can only make the wait longer, never shorter.
 *
 *--------------------------------------------------------------------*/

func (s *Scheduler) MarkChannelActivity(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nb = t.Add(s.spacing)
	if nb.After(s.not_before) {
		s.not_before = nb
		s.signal()
	}
}

// Pending is the number of jobs waiting to be sent.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Earliest time the next transmission may start.
func (s *Scheduler) earliest_locked() time.Time {
	var t = s.not_before
	if !s.last_start.IsZero() {
		var after_last = s.last_start.Add(s.spacing)
		if after_last.After(t) {
			t = after_last
		}
	}
	return t
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Transmit queued jobs, one at a time, until ctx is cancelled
 *		or the link goes away.
 *
 * Returns:	nil when ctx is cancelled.  Queued jobs are then failed with
 *		ErrSchedulerStopped.  A transmission already handed to the
 *		link is allowed to finish.
 *
 *		An error wrapping ErrLinkClosed if the link failed.  The job
 *		being sent and everything queued behind it are failed with it.
 *
 *		Other send errors fail just that job.
 *
 *--------------------------------------------------------------------*/

func (s *Scheduler) Run(ctx context.Context) error {
	var timer = time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			s.stop(ErrSchedulerStopped)
			return nil
		}

		s.mu.Lock()
		var job *TransmitJob
		var wait time.Duration
		if len(s.queue) > 0 {
			var now = time.Now()
			wait = s.earliest_locked().Sub(now)
			if wait <= 0 {
				job = s.queue[0]
				s.queue[0] = nil
				s.queue = s.queue[1:]
				s.last_start = now
				job.set_sending(now)
			}
		}
		var empty = len(s.queue) == 0 && job == nil
		s.mu.Unlock()

		if job == nil {
			if !empty {
				timer.Reset(wait)
			}
			select {
			case <-ctx.Done():
			case <-s.wake:
			case <-timer.C:
			}
			timer.Stop()
			continue
		}

		s.logger.Debug("Transmitting", "type", job.Message.Type, "to", job.Message.Destination, "id", job.Message.ID)

		var err = s.sender.Send(job.frame)
		if err != nil {
			s.logger.Error("Transmit failed", "to", job.Message.Destination, "id", job.Message.ID, "err", err)
			s.complete(job, err)
			if errors.Is(err, ErrLinkClosed) {
				s.stop(err)
				return err
			}
			continue
		}

		s.complete(job, nil)
	}
}

func (s *Scheduler) complete(job *TransmitJob, err error) {
	job.finish(err)
	if s.on_finished != nil {
		s.on_finished(job)
	}
}

// Fail everything still queued and refuse new work.
func (s *Scheduler) stop(reason error) {
	s.mu.Lock()
	s.stopped = true
	var remaining = s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, job := range remaining {
		s.complete(job, reason)
	}
}

/* end tq.go */
