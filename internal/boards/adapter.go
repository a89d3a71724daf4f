package boards

import (
	"context"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
)

// ErrAuthFailure is returned by Login when the board rejects the
// credentials. Retrying with the same credentials is pointless.
var ErrAuthFailure = errors.New("board login failed")

type RawOutcome string

const (
	OutcomeSuccess          RawOutcome = "success"
	OutcomeCaptchaPresented RawOutcome = "captcha_presented"
	OutcomeElementNotFound  RawOutcome = "element_not_found"
	OutcomeNetworkError     RawOutcome = "network_error"
	OutcomeUnexpectedPage   RawOutcome = "unexpected_page"
	OutcomeAlreadyApplied   RawOutcome = "already_applied_on_board"
	OutcomeRejected         RawOutcome = "rejected"
)

// RawResult is what an apply action reports back. Detail carries whatever
// page text explains the outcome, for the attempt's diagnostic payload.
type RawResult struct {
	Outcome RawOutcome
	Detail  string
}

type Credentials struct {
	Email    string
	Password string
}

// CredentialSource hands out board credentials for a user. Storage of
// credentials is the caller's problem, not this package's.
type CredentialSource interface {
	Get(ctx context.Context, userID int64, board entities.Board) (Credentials, error)
}

type JobPosting struct {
	Board    entities.Board
	URL      string
	Title    string
	Company  string
	Location string
	PostedAt time.Time
}

// Session is a logged-in browser session on one board. It must be closed on
// every exit path; Close tears the underlying driver down.
type Session struct {
	board  entities.Board
	driver Driver
}

// NewSession wraps a driver for adapter implementations living outside this
// package.
func NewSession(board entities.Board, driver Driver) *Session {
	return &Session{board: board, driver: driver}
}

func (s *Session) Board() entities.Board {
	return s.board
}

func (s *Session) Close() error {
	return s.driver.Close()
}

// Postings is a lazy, finite, non-restartable sequence of search results.
// Next returns nil when the sequence is exhausted.
type Postings struct {
	fetch func(ctx context.Context) ([]JobPosting, bool, error)
	buf   []JobPosting
	done  bool
}

// NewPostings builds a sequence from a page fetcher. The fetcher returns one
// page and whether more pages remain.
func NewPostings(fetch func(ctx context.Context) ([]JobPosting, bool, error)) *Postings {
	return &Postings{fetch: fetch}
}

func (p *Postings) Next(ctx context.Context) (*JobPosting, error) {
	for len(p.buf) == 0 && !p.done {
		page, more, err := p.fetch(ctx)
		if err != nil {
			p.done = true
			return nil, err
		}
		p.buf = append(p.buf, page...)
		p.done = !more
	}

	if len(p.buf) == 0 {
		return nil, nil
	}

	posting := p.buf[0]
	p.buf = p.buf[1:]
	return &posting, nil
}

// Adapter is the capability contract every supported board implements.
// Adapters never retry internally; retry decisions belong to the caller.
type Adapter interface {
	Board() entities.Board
	Login(ctx context.Context, credentials Credentials) (*Session, error)
	Search(ctx context.Context, session *Session, criteria entities.SearchCriteria) (*Postings, error)
	Apply(ctx context.Context, session *Session, posting JobPosting) (RawResult, error)
}
