package stream

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"klaro/internal/text"
)

// Connection states. The subscription is an explicit state machine:
// Disconnected -> Connecting -> Streaming -> (Disconnected | Terminal).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateTerminal:
		return "terminal"
	default:
		return "disconnected"
	}
}

// Options configures a Subscription. The zero value gets sensible defaults;
// Sleep exists so reconnect backoff is testable without wall-clock waits.
type Options struct {
	HTTPClient  *http.Client
	Backoff     time.Duration // delay between reconnect attempts
	MaxAttempts int           // consecutive failed connects before giving up; 0 = retry forever
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Subscription follows one job's progress stream, merging snapshots into
// local state and transparently reconnecting on transport errors. It is
// owned by the caller: Start runs until a terminal state, context
// cancellation, or the retry budget is exhausted.
type Subscription struct {
	url  string
	opts Options

	mu        sync.Mutex
	state     State
	total     int
	processed int
	results   map[int]string
	summary   string
	completed bool
	errMsg    string
}

func NewSubscription(url string, opts Options) *Subscription {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 3 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	return &Subscription{
		url:     url,
		opts:    opts,
		results: make(map[int]string),
	}
}

// Start drives the subscription until the job reaches a terminal state. A
// dropped connection is not a job failure: the client backs off and
// reconnects. It returns nil on a terminal state (including job failure;
// inspect Err for that) and an error only when the subscription itself gives
// up: context cancelled or MaxAttempts consecutive connect failures.
func (s *Subscription) Start(ctx context.Context) error {
	failures := 0

	for {
		s.setState(StateConnecting)

		err := s.streamOnce(ctx)
		if s.State() == StateTerminal {
			return nil
		}
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		failures++
		if s.opts.MaxAttempts > 0 && failures >= s.opts.MaxAttempts {
			s.setState(StateDisconnected)
			return fmt.Errorf("stream retries exhausted after %d attempts: %w", failures, err)
		}

		slog.Debug("stream disconnected, retrying", "url", s.url, "attempt", failures, "error", err)
		s.setState(StateDisconnected)
		if err := s.opts.Sleep(ctx, s.opts.Backoff); err != nil {
			return err
		}
	}
}

// streamOnce opens the transport and consumes events until it drops or a
// terminal message arrives.
func (s *Subscription) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned %d", resp.StatusCode)
	}

	s.setState(StateStreaming)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := ParseMessage([]byte(line))
		if err != nil {
			slog.Debug("skipping malformed stream event", "error", err)
			continue
		}

		if terminal := s.apply(msg); terminal {
			s.setState(StateTerminal)
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed before terminal state")
}

// apply merges one message into local state. Snapshots are idempotent:
// chunk results overwrite by index, so replays and out-of-order snapshots
// converge. Returns true once a terminal state is reached.
func (s *Subscription) apply(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case NotFound:
		// The job may not exist yet; keep waiting.
		return false
	case Progress:
		s.total = m.TotalChunks
		s.processed = m.ProcessedChunks
		s.summary = m.Summary
		for i, r := range m.Results {
			s.results[i] = r
		}
		return false
	case Completed:
		s.total = m.TotalChunks
		s.summary = m.Summary
		for i, r := range m.Results {
			s.results[i] = r
		}
		s.processed = len(s.results)
		s.completed = true
		return true
	case Failed:
		s.total = m.TotalChunks
		for i, r := range m.Results {
			s.results[i] = r
		}
		s.processed = len(s.results)
		s.errMsg = m.Message
		return true
	}
	return false
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress reports processed and total chunk counts.
func (s *Subscription) Progress() (processed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed, s.total
}

// Completed reports whether the job finished successfully.
func (s *Subscription) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Err returns the job's terminal error message, if any.
func (s *Subscription) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Summary returns the document summary, when the job produced one.
func (s *Subscription) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Reassemble joins accumulated chunk results in index order, never arrival
// order, since chunk completion order is not guaranteed.
func (s *Subscription) Reassemble() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices := make([]int, 0, len(s.results))
	for i := range s.results {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	parts := make([]string, 0, len(indices))
	for _, i := range indices {
		parts = append(parts, s.results[i])
	}
	return strings.Join(parts, text.Separator)
}
