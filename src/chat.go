package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	A chat session: our station, one KISS TNC, and the
 *		conversation so far.
 *
 * Description:	Two goroutines run for the life of the session.
 *
 *		Receive	- Frames from the TNC are taken apart.  Messages for
 *			  us are acknowledged, checked for duplicates and
 *			  passed up as events.  Acknowledgements for us mark
 *			  our message as delivered.  Everything else heard
 *			  on the channel only delays our next transmission.
 *
 *		Transmit - The Scheduler.  Messages from the user and our
 *			  ACKs go out in order, TimeDelay apart.
 *
 *		The user interface calls Send and reads Events.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const CONNECT_ATTEMPTS = 4
const CONNECT_RETRY_DELAY = 1 * time.Second

const DEFAULT_EVENT_BUFFER = 64

/* How long a frame already being written to the TNC gets to finish when shutting down. */
const SHUTDOWN_WRITE_TIMEOUT = 2 * time.Second

var ErrSessionRunning = errors.New("session already running")

type EventKind int

const (
	EventMessage EventKind = iota /* New message for us. */
	EventSent                     /* Our message went to the TNC. */
	EventAck                      /* Our message was acknowledged. */
	EventFailed                   /* Our message could not be sent. */
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventSent:
		return "sent"
	case EventAck:
		return "ack"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind    EventKind
	Message ChatMessage
	Err     error /* EventFailed only. */
}

// SessionStats are counters since the session was created.
type SessionStats struct {
	Received      uint64 /* New messages for us. */
	Sent          uint64
	Acked         uint64
	Failed        uint64
	Duplicates    int
	Echoes        uint64 /* Our own frames heard back through a digipeater. */
	FrameErrors   uint64 /* Bad AX.25. */
	PayloadErrors uint64
	Ignored       uint64 /* Not UI, not for us, unknown type... */
	Link          LinkStats
}

type SessionOption func(*Session)

func WithLogger(l *log.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithCompression sets how our message text is sent.  Default smaz.
func WithCompression(c CompressionKind) SessionOption {
	return func(s *Session) {
		s.compression = c
	}
}

func WithColors(c ColorMap) SessionOption {
	return func(s *Session) {
		s.colors = c
	}
}

func WithDedupeWindow(n int) SessionOption {
	return func(s *Session) {
		s.window = n
	}
}

func WithEventBuffer(n int) SessionOption {
	return func(s *Session) {
		s.event_buffer = n
	}
}

type Session struct {
	cfg          Config
	link         FrameLink
	logger       *log.Logger
	compression  CompressionKind
	colors       ColorMap
	window       int
	event_buffer int

	messages *MessageLog
	sched    *Scheduler
	events   chan Event
	quit     chan struct{} /* Closed when shutting down, so emit can't block. */
	running  atomic.Bool

	received       atomic.Uint64
	sent           atomic.Uint64
	acked          atomic.Uint64
	failed         atomic.Uint64
	echoes         atomic.Uint64
	frame_errors   atomic.Uint64
	payload_errors atomic.Uint64
	ignored        atomic.Uint64
}

/*-------------------------------------------------------------------
 *
 * Name:        NewSession
 *
 * Inputs:	cfg	- Our callsign and the transmit spacing are used.
 *			  Host and Port were for making the link.
 *
 *		link	- Open link to the TNC.  The session closes it
 *			  when Run returns.
 *
 *--------------------------------------------------------------------*/

func NewSession(cfg Config, link FrameLink, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var s = &Session{
		cfg:          cfg,
		link:         link,
		logger:       log.New(io.Discard),
		compression:  COMPRESSION_SMAZ,
		window:       DEFAULT_DEDUPE_WINDOW,
		event_buffer: DEFAULT_EVENT_BUFFER,
		quit:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.compression != COMPRESSION_NONE && s.compression != COMPRESSION_SMAZ {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompressionKind, s.compression)
	}

	s.messages = NewMessageLog(s.window)
	s.events = make(chan Event, max(s.event_buffer, 0))
	s.sched = NewScheduler(link, cfg.Callsign, cfg.TimeDelay,
		WithSchedulerLogger(s.logger),
		WithQueuedHook(s.job_queued),
		WithFinishedHook(s.job_finished))

	return s, nil
}

func (s *Session) Callsign() Callsign {
	return s.cfg.Callsign
}

// Log is the conversation so far.
func (s *Session) Log() *MessageLog {
	return s.messages
}

func (s *Session) Colors() ColorMap {
	return s.colors
}

// Events delivers what happened, in order.  Closed when Run returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) Stats() SessionStats {
	var st = SessionStats{
		Received:      s.received.Load(),
		Sent:          s.sent.Load(),
		Acked:         s.acked.Load(),
		Failed:        s.failed.Load(),
		Duplicates:    s.messages.Duplicates(),
		Echoes:        s.echoes.Load(),
		FrameErrors:   s.frame_errors.Load(),
		PayloadErrors: s.payload_errors.Load(),
		Ignored:       s.ignored.Load(),
	}

	if ls, ok := s.link.(interface{ Stats() LinkStats }); ok {
		st.Link = ls.Stats()
	}

	return st
}

/*-------------------------------------------------------------------
 *
 * Name:        Send
 *
 * Purpose:     Queue a message from the user.
 *
 * Inputs:	dest	- Station to send to.
 *
 *		text	- What to say.
 *
 * Returns:	The job.  Its Message has the id we used, and it is
 *		already in the log.
 *
 *--------------------------------------------------------------------*/

func (s *Session) Send(dest Callsign, text string) (*TransmitJob, error) {
	if !dest.Valid() {
		return nil, fmt.Errorf("%w: destination \"%s\"", ErrInvalidCallsign, dest)
	}

	var m = ChatMessage{
		Destination: dest,
		Compression: s.compression,
		Text:        []byte(text),
		Timestamp:   time.Now(),
	}

	return s.sched.Submit(m)
}

// Called by the scheduler, with its lock held, before the job can be sent.
func (s *Session) job_queued(job *TransmitJob) {
	if job.Message.Type != MSG {
		return
	}

	/* Recorded now so an echo from a digipeater is seen as a duplicate. */
	if !s.messages.AcceptOutbound(job.Message) {
		s.logger.Warn("Message id reused while still remembered", "id", job.Message.ID)
	}
}

func (s *Session) job_finished(job *TransmitJob) {
	var err = job.Err()

	if job.Message.Type != MSG {
		if err != nil {
			s.logger.Warn("Could not send ACK", "to", job.Message.Destination, "id", job.Message.ID, "err", err)
		}
		return
	}

	if err != nil {
		s.failed.Add(1)
		s.emit(Event{Kind: EventFailed, Message: job.Message, Err: err})
		return
	}

	s.sent.Add(1)
	s.logger.Info("Sent", "to", job.Message.Destination, "id", job.Message.ID)
	s.emit(Event{Kind: EventSent, Message: job.Message})
}

// Events are only dropped when shutting down with the buffer full.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
		return
	default:
	}

	select {
	case s.events <- e:
	case <-s.quit:
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Receive and transmit until ctx is cancelled or the
 *		link to the TNC is lost.
 *
 * Returns:	nil after ctx is cancelled.
 *		An error wrapping ErrLinkClosed if the TNC went away.
 *
 * Description:	Shutting down: the scheduler stops taking jobs and we
 *		wait for it, so a frame being written to the TNC is
 *		finished.  A write still stuck after SHUTDOWN_WRITE_TIMEOUT
 *		fails when the link is closed.  Closing the link ends the
 *		receive loop.
 *
 *--------------------------------------------------------------------*/

func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}

	var runCtx, cancel = context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var schedErr, recvErr error
	var schedDone = make(chan struct{})

	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(schedDone)
		schedErr = s.sched.Run(runCtx)
		cancel()
	}()

	go func() {
		defer wg.Done()
		recvErr = s.receive_loop()
		cancel()
	}()

	s.logger.Info("Session started", "callsign", s.cfg.Callsign, "tnc", s.link)

	<-runCtx.Done()

	close(s.quit)

	select {
	case <-schedDone:
	case <-time.After(SHUTDOWN_WRITE_TIMEOUT):
		s.logger.Warn("TNC is not taking our frame, closing anyway", "tnc", s.link)
	}

	var closeErr = s.link.Close()
	wg.Wait()
	close(s.events)

	s.logger.Info("Session ended", "stats", fmt.Sprintf("%+v", s.Stats()))

	if ctx.Err() != nil {
		return nil
	}
	if schedErr != nil {
		return schedErr
	}
	if recvErr != nil {
		return recvErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %w", ErrLinkClosed, closeErr)
	}
	return ErrLinkClosed
}

func (s *Session) receive_loop() error {
	for {
		var raw, err = s.link.Receive()
		if err != nil {
			return err
		}

		s.handle_frame(raw, time.Now())
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        handle_frame
 *
 * Purpose:     Process one frame heard by the TNC.
 *
 * Description:	Bad frames are counted and dropped.  They never end
 *		the session.
 *
 *--------------------------------------------------------------------*/

func (s *Session) handle_frame(raw []byte, now time.Time) {
	s.sched.MarkChannelActivity(now)

	var f, err = ax25_unpack(raw)
	if err != nil {
		s.frame_errors.Add(1)
		s.logger.Warn("Bad AX.25 frame", "err", err, "len", len(raw))
		return
	}

	s.logger.Debug("Heard", "frame", f)

	if !f.IsUI() || f.PID != AX25_PID_NO_LAYER_3 {
		s.ignored.Add(1)
		return
	}

	var me = s.cfg.Callsign

	if f.Source != me && f.Destination != me {
		s.ignored.Add(1)
		return
	}

	var m, perr = DecodePayload(f.Info)
	if perr != nil {
		s.payload_errors.Add(1)
		s.logger.Warn("Bad chat payload", "from", f.Source, "err", perr)
		return
	}

	m.Sender = f.Source
	m.Destination = f.Destination
	m.Timestamp = now

	if f.Source == me {
		/* Our own transmission, repeated.  Already in the log. */
		s.echoes.Add(1)
		if m.Type == MSG && s.messages.Accept(me, *m) {
			s.logger.Warn("Heard our own message that we didn't send", "id", m.ID)
		}
		return
	}

	switch m.Type {
	case MSG:
		/* ACK even a duplicate, the sender probably didn't hear the last one. */
		if _, err := s.sched.SubmitAck(m.Sender, m.ID); err != nil {
			s.logger.Warn("Could not queue ACK", "to", m.Sender, "id", m.ID, "err", err)
		}

		if !s.messages.Accept(m.Sender, *m) {
			s.logger.Debug("Duplicate", "key", m.Key())
			return
		}

		s.received.Add(1)
		s.logger.Info("Received", "from", m.Sender, "id", m.ID)
		s.emit(Event{Kind: EventMessage, Message: *m})

	case ACK:
		var key = MessageKey{Sender: me, ID: m.ID}
		if !s.messages.MarkAcked(key) {
			s.logger.Debug("ACK for unknown or already acknowledged message", "from", m.Sender, "id", m.ID)
			return
		}

		var entry, _ = s.messages.Lookup(key)
		s.acked.Add(1)
		s.logger.Info("Acknowledged", "by", m.Sender, "id", m.ID)
		s.emit(Event{Kind: EventAck, Message: entry.ChatMessage})

	default:
		s.ignored.Add(1)
		s.logger.Debug("Ignoring message type", "type", m.Type, "from", m.Sender)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        ConnectLink
 *
 * Purpose:     Open the link to the TNC named in the settings.
 *
 * Description:	Serial port if one is given, otherwise TCP.
 *		A TNC that was just started may not be listening yet so
 *		we try CONNECT_ATTEMPTS times, CONNECT_RETRY_DELAY apart.
 *
 *--------------------------------------------------------------------*/

func ConnectLink(ctx context.Context, settings *Settings, logger *log.Logger) (*Link, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var opts = []LinkOption{
		WithLinkLogger(logger),
		WithHexDump(settings.Verbose >= VERBOSE_HEXDUMP),
	}

	var lastErr error

	for attempt := 1; attempt <= CONNECT_ATTEMPTS; attempt++ {
		var link *Link
		var err error

		if settings.SerialDevice != "" {
			link, err = OpenSerial(settings.SerialDevice, settings.SerialSpeed, opts...)
		} else {
			link, err = DialTCP(ctx, settings.Host, settings.Port, opts...)
		}

		if err == nil {
			logger.Info("Connected to TNC", "tnc", link, "attempt", attempt)
			return link, nil
		}

		lastErr = err
		logger.Warn("Could not connect to TNC", "attempt", attempt, "of", CONNECT_ATTEMPTS, "err", err)

		if attempt == CONNECT_ATTEMPTS {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(CONNECT_RETRY_DELAY):
		}
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", CONNECT_ATTEMPTS, lastErr)
}

/* end chat.go */
