package chatfx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	errs   []error /* Returned by successive calls, then nil. */
}

func (r *recordingSender) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.errs) > 0 {
		var err = r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}

	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingSender) sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func start_scheduler(t *testing.T, s *Scheduler) (context.CancelFunc, chan error) {
	t.Helper()

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return cancel, done
}

func wait_job(t *testing.T, job *TransmitJob) error {
	t.Helper()

	var ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err = job.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "job never finished")
	return err
}

func TestScheduler_ids_increase(t *testing.T) {
	var s = NewScheduler(&recordingSender{}, n0call, 0)

	for i := 0; i < 5; i++ {
		var job, err = s.Submit(ChatMessage{Destination: w1aw, Text: []byte("x")})
		require.NoError(t, err)
		assert.Equal(t, uint16(i), job.Message.ID)
		assert.Equal(t, MSG, job.Message.Type)
		assert.Equal(t, n0call, job.Message.Sender)
		assert.Equal(t, JOB_QUEUED, job.State())
	}
	assert.Equal(t, 5, s.Pending())
}

func TestScheduler_ids_wrap(t *testing.T) {
	var s = NewScheduler(&recordingSender{}, n0call, 0)
	s.next_id = 65535

	var a, _ = s.Submit(ChatMessage{Destination: w1aw})
	var b, _ = s.Submit(ChatMessage{Destination: w1aw})

	assert.Equal(t, uint16(65535), a.Message.ID)
	assert.Equal(t, uint16(0), b.Message.ID)
}

func TestScheduler_ack_uses_peer_id(t *testing.T) {
	var s = NewScheduler(&recordingSender{}, n0call, 0)

	var ack, err = s.SubmitAck(w1aw, 42)
	require.NoError(t, err)
	assert.Equal(t, ACK, ack.Message.Type)
	assert.Equal(t, uint16(42), ack.Message.ID)

	var m, _ = s.Submit(ChatMessage{Destination: w1aw})
	assert.Equal(t, uint16(0), m.Message.ID, "ACK must not use up an id")
}

func TestScheduler_bad_destination(t *testing.T) {
	var s = NewScheduler(&recordingSender{}, n0call, 0)

	var _, err = s.Submit(ChatMessage{Destination: Callsign{Call: "bad call"}})
	assert.ErrorIs(t, err, ErrInvalidCallsign)

	var job, _ = s.Submit(ChatMessage{Destination: w1aw})
	assert.Equal(t, uint16(0), job.Message.ID)
}

func TestScheduler_sends_frames(t *testing.T) {
	var rec = &recordingSender{}
	var s = NewScheduler(rec, n0call, 0)
	start_scheduler(t, s)

	var job, _ = s.Submit(ChatMessage{Destination: w1aw, Compression: COMPRESSION_SMAZ, Text: []byte("hello")})
	var ack, _ = s.SubmitAck(w1aw, 9)

	require.NoError(t, wait_job(t, job))
	require.NoError(t, wait_job(t, ack))
	assert.Equal(t, JOB_SENT, job.State())

	var frames = rec.sent()
	require.Len(t, frames, 2)

	var f, err = ax25_unpack(frames[0])
	require.NoError(t, err)
	assert.Equal(t, w1aw, f.Destination)
	assert.Equal(t, n0call, f.Source)
	assert.True(t, f.IsUI())

	var m, perr = DecodePayload(f.Info)
	require.NoError(t, perr)
	assert.Equal(t, "hello", string(m.Text))

	var fa, _ = ax25_unpack(frames[1])
	var ma, _ = DecodePayload(fa.Info)
	assert.Equal(t, ACK, ma.Type)
	assert.Equal(t, uint16(9), ma.ID)
}

func TestScheduler_spacing(t *testing.T) {
	const spacing = 80 * time.Millisecond

	var s = NewScheduler(&recordingSender{}, n0call, spacing)
	start_scheduler(t, s)

	var mu sync.Mutex
	var jobs []*TransmitJob
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var job, err = s.Submit(ChatMessage{Destination: w1aw})
			assert.NoError(t, err)
			mu.Lock()
			jobs = append(jobs, job)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var starts []time.Time
	for _, job := range jobs {
		require.NoError(t, wait_job(t, job))
		starts = append(starts, job.Started())
	}

	for i := range starts {
		for j := range starts {
			if i != j {
				var d = starts[i].Sub(starts[j]).Abs()
				assert.GreaterOrEqual(t, d, spacing)
			}
		}
	}
}

func TestScheduler_two_second_spacing(t *testing.T) {
	if testing.Short() {
		t.Skip("takes 4 seconds")
	}

	var s = NewScheduler(&recordingSender{}, n0call, 2*time.Second)
	start_scheduler(t, s)

	var a, _ = s.Submit(ChatMessage{Destination: w1aw, Text: []byte("one")})
	var b, _ = s.Submit(ChatMessage{Destination: w1aw, Text: []byte("two")})
	var c, _ = s.Submit(ChatMessage{Destination: w1aw, Text: []byte("three")})

	require.NoError(t, wait_job(t, c))
	require.NoError(t, wait_job(t, a))
	require.NoError(t, wait_job(t, b))

	assert.GreaterOrEqual(t, b.Started().Sub(a.Started()), 2*time.Second)
	assert.GreaterOrEqual(t, c.Started().Sub(b.Started()), 2*time.Second)
}

func TestScheduler_fifo(t *testing.T) {
	var rec = &recordingSender{}
	var s = NewScheduler(rec, n0call, time.Millisecond)

	var jobs []*TransmitJob
	for i := 0; i < 5; i++ {
		var job, _ = s.Submit(ChatMessage{Destination: w1aw})
		jobs = append(jobs, job)
	}

	start_scheduler(t, s)
	require.NoError(t, wait_job(t, jobs[4]))

	var frames = rec.sent()
	require.Len(t, frames, 5)
	for i, frame := range frames {
		var f, _ = ax25_unpack(frame)
		var m, _ = DecodePayload(f.Info)
		assert.Equal(t, uint16(i), m.ID)
	}
}

func TestScheduler_channel_activity_delays(t *testing.T) {
	const spacing = 150 * time.Millisecond

	var s = NewScheduler(&recordingSender{}, n0call, spacing)
	start_scheduler(t, s)

	var heard = time.Now()
	s.MarkChannelActivity(heard)
	s.MarkChannelActivity(heard.Add(-time.Hour)) /* Never makes it earlier. */

	var job, _ = s.Submit(ChatMessage{Destination: w1aw})
	require.NoError(t, wait_job(t, job))

	assert.GreaterOrEqual(t, job.Started().Sub(heard), spacing)
}

func TestScheduler_link_closed_fails_queue(t *testing.T) {
	var rec = &recordingSender{errs: []error{ErrLinkClosed}}
	var s = NewScheduler(rec, n0call, time.Hour)

	var a, _ = s.Submit(ChatMessage{Destination: w1aw})
	var b, _ = s.Submit(ChatMessage{Destination: w1aw})

	var err = s.Run(context.Background())

	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.ErrorIs(t, wait_job(t, a), ErrLinkClosed)
	assert.ErrorIs(t, wait_job(t, b), ErrLinkClosed)
	assert.Equal(t, JOB_FAILED, b.State())

	var _, serr = s.Submit(ChatMessage{Destination: w1aw})
	assert.ErrorIs(t, serr, ErrSchedulerStopped)
}

func TestScheduler_other_error_fails_one(t *testing.T) {
	var boom = errors.New("boom")
	var rec = &recordingSender{errs: []error{boom}}
	var s = NewScheduler(rec, n0call, 0)
	start_scheduler(t, s)

	var a, _ = s.Submit(ChatMessage{Destination: w1aw})
	var b, _ = s.Submit(ChatMessage{Destination: w1aw})

	assert.ErrorIs(t, wait_job(t, a), boom)
	assert.NoError(t, wait_job(t, b))
}

func TestScheduler_cancel(t *testing.T) {
	var s = NewScheduler(&recordingSender{}, n0call, time.Hour)
	var cancel, done = start_scheduler(t, s)

	var a, _ = s.Submit(ChatMessage{Destination: w1aw})
	require.NoError(t, wait_job(t, a))

	var b, _ = s.Submit(ChatMessage{Destination: w1aw})
	assert.Equal(t, JOB_QUEUED, b.State())

	cancel()
	require.NoError(t, <-done)
	done <- nil /* For the cleanup. */

	assert.ErrorIs(t, wait_job(t, b), ErrSchedulerStopped)
}

func TestScheduler_hooks(t *testing.T) {
	var mu sync.Mutex
	var queued, finished []uint16

	var s = NewScheduler(&recordingSender{}, n0call, 0,
		WithQueuedHook(func(j *TransmitJob) {
			mu.Lock()
			defer mu.Unlock()
			queued = append(queued, j.Message.ID)
		}),
		WithFinishedHook(func(j *TransmitJob) {
			mu.Lock()
			defer mu.Unlock()
			finished = append(finished, j.Message.ID)
		}))
	start_scheduler(t, s)

	var job, _ = s.Submit(ChatMessage{Destination: w1aw})
	require.NoError(t, wait_job(t, job))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint16{0}, queued)
	assert.Equal(t, []uint16{0}, finished)
}
