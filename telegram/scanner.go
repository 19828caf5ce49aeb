package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrNoPost means no qualifying post was found within the page budget
	ErrNoPost = errors.New("no qualifying post")

	// ErrExpired means the newest qualifying post is older than the TTL
	ErrExpired = errors.New("latest post expired")
)

const (
	defaultMaxPagesToday    = 16
	defaultMaxPagesHistory  = 60
	defaultDoubleCheckDepth = 30
	defaultDoubleCheckGap   = time.Minute * 10
)

// Fetcher fetches one page of channel posts
type Fetcher interface {
	Page(ctx context.Context, channel string, before int64, fresh bool) ([]Post, error)
}

// Channel describes one channel scan target
type Channel struct {
	// Match qualifies a post for picking. A nil Match accepts every post.
	Match func(Post) bool

	Name string

	// TTL bounds the age of the final pick; 0 disables the gate
	TTL time.Duration

	// DoubleCheckDepth overrides the scanner default when > 0. High-volume
	// channels need a deeper re-scan window.
	DoubleCheckDepth int

	// TakeNewest makes the double-check pass always adopt the newest
	// qualifying post instead of requiring a minimum freshness gap
	TakeNewest bool
}

// Scanner walks channel pages backward through history to find the most
// recent qualifying post
type Scanner struct {
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time
	loc     *time.Location

	maxPagesToday   int
	maxPagesHistory int
	checkDepth      int
	checkGap        time.Duration
}

// ScannerOption configures the scanner
type ScannerOption func(s *Scanner)

// WithScanLogger specifies the logger for the scanner
func WithScanLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithLocation sets the timezone that defines "today"
func WithLocation(loc *time.Location) ScannerOption {
	return func(s *Scanner) {
		s.loc = loc
	}
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		s.now = now
	}
}

// NewScanner creates a new channel scanner
func NewScanner(fetcher Fetcher, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		fetcher:         fetcher,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
		loc:             referenceLocation(),
		maxPagesToday:   defaultMaxPagesToday,
		maxPagesHistory: defaultMaxPagesHistory,
		checkDepth:      defaultDoubleCheckDepth,
		checkGap:        defaultDoubleCheckGap,
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// referenceLocation is the market timezone that anchors "today"
func referenceLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err == nil {
		return loc
	}

	return time.FixedZone("+03", 3*60*60)
}

// ScanToday finds the newest qualifying post published today, then runs a
// bounded double-check pass over a fresh first page to catch posts that
// landed mid-scan. The final pick must be younger than the channel TTL.
func (s *Scanner) ScanToday(ctx context.Context, ch Channel) (*Post, error) {
	now := s.now().In(s.loc)

	best, maxID, err := s.scanTodayPages(ctx, ch, now)
	if err != nil {
		return nil, err
	}

	best = s.doubleCheck(ctx, ch, now, best, maxID)

	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPost, ch.Name)
	}

	if ch.TTL > 0 && now.Sub(best.Time) > ch.TTL {
		return nil, fmt.Errorf(
			"%w: %s post %d from %s",
			ErrExpired, ch.Name, best.ID, best.Time.Format(time.RFC3339),
		)
	}

	return best, nil
}

// scanTodayPages walks pages backward, returning the best pick so far and
// the highest post id seen anywhere during the walk
func (s *Scanner) scanTodayPages(
	ctx context.Context,
	ch Channel,
	now time.Time,
) (*Post, int64, error) {
	var (
		best   *Post
		maxID  int64
		before int64
	)

	year, month, day := now.Date()

	for page := 0; page < s.maxPagesToday; page++ {
		posts, err := s.fetcher.Page(ctx, ch.Name, before, page == 0)
		if err != nil {
			return nil, 0, fmt.Errorf("unable to scan channel %s: %w", ch.Name, err)
		}

		if len(posts) == 0 {
			break
		}

		var (
			pageMin  = posts[0].ID
			hasToday bool
		)

		for _, post := range posts {
			pageMin = min(pageMin, post.ID)
			maxID = max(maxID, post.ID)

			if post.Time.IsZero() {
				s.logger.Debug(
					"post skipped",
					"channel", ch.Name,
					"id", post.ID,
					"reason", "no-time",
				)

				continue
			}

			py, pm, pd := post.Time.In(s.loc).Date()
			if py != year || pm != month || pd != day {
				continue
			}

			hasToday = true

			if ch.Match != nil && !ch.Match(post) {
				continue
			}

			if best == nil || moreRecent(post, *best) {
				pick := post
				best = &pick
			}
		}

		// Paged past today's posts, older pages can't improve the pick
		if !hasToday {
			break
		}

		if pageMin <= 1 || pageMin == before {
			break
		}

		before = pageMin
	}

	return best, maxID, nil
}

// doubleCheck re-fetches fresh pages and scans a bounded number of posts
// for anything published after the initial walk. Errors here degrade to
// keeping the original pick.
func (s *Scanner) doubleCheck(
	ctx context.Context,
	ch Channel,
	now time.Time,
	best *Post,
	maxID int64,
) *Post {
	depth := ch.DoubleCheckDepth
	if depth <= 0 {
		depth = s.checkDepth
	}

	var (
		candidate *Post
		scanned   int
		before    int64
	)

	year, month, day := now.Date()

	for page := 0; scanned < depth && page < s.maxPagesToday; page++ {
		posts, err := s.fetcher.Page(ctx, ch.Name, before, page == 0)
		if err != nil {
			s.logger.Warn(
				"double-check fetch failed",
				"channel", ch.Name,
				"err", err,
			)

			break
		}

		if len(posts) == 0 {
			break
		}

		pageMin := posts[0].ID

		for _, post := range posts {
			pageMin = min(pageMin, post.ID)
			scanned++

			if post.Time.IsZero() {
				continue
			}

			if !ch.TakeNewest && post.ID <= maxID {
				continue
			}

			py, pm, pd := post.Time.In(s.loc).Date()
			if py != year || pm != month || pd != day {
				continue
			}

			if ch.Match != nil && !ch.Match(post) {
				continue
			}

			if candidate == nil || moreRecent(post, *candidate) {
				pick := post
				candidate = &pick
			}
		}

		if pageMin <= 1 || pageMin == before {
			break
		}

		before = pageMin
	}

	if candidate == nil {
		return best
	}

	if best == nil || ch.TakeNewest {
		if best == nil || moreRecent(*candidate, *best) {
			return candidate
		}

		return best
	}

	// A mid-scan post replaces the pick only when it is meaningfully newer
	if candidate.Time.Sub(best.Time) >= s.checkGap {
		return candidate
	}

	return best
}

// ScanLast finds the most recent qualifying post anywhere in history,
// starting before the given post id. Used for audits, not for rates.
func (s *Scanner) ScanLast(ctx context.Context, ch Channel, startBefore int64) (*Post, error) {
	before := startBefore

	for page := 0; page < s.maxPagesHistory; page++ {
		posts, err := s.fetcher.Page(ctx, ch.Name, before, false)
		if err != nil {
			return nil, fmt.Errorf("unable to scan channel %s: %w", ch.Name, err)
		}

		if len(posts) == 0 {
			break
		}

		var best *Post

		pageMin := posts[0].ID

		for _, post := range posts {
			pageMin = min(pageMin, post.ID)

			if post.Time.IsZero() {
				continue
			}

			if ch.Match != nil && !ch.Match(post) {
				continue
			}

			if best == nil || moreRecent(post, *best) {
				pick := post
				best = &pick
			}
		}

		if best != nil {
			return best, nil
		}

		if pageMin <= 1 || pageMin == before {
			break
		}

		before = pageMin
	}

	return nil, fmt.Errorf("%w: %s", ErrNoPost, ch.Name)
}
