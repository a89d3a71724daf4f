package tests

import (
	"context"
	"sync"

	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
)

type nopDriver struct{}

func (nopDriver) Navigate(context.Context, string) error          { return nil }
func (nopDriver) Fill(context.Context, string, string) error      { return nil }
func (nopDriver) Click(context.Context, string) error             { return nil }
func (nopDriver) Exists(context.Context, string) (bool, error)    { return false, nil }
func (nopDriver) Text(context.Context, string) (string, error)    { return "", nil }
func (nopDriver) TextAll(context.Context, string) ([]string, error) {
	return nil, nil
}
func (nopDriver) AttrAll(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (nopDriver) PageSource(context.Context) (string, error) { return "", nil }
func (nopDriver) CurrentURL(context.Context) (string, error) { return "", nil }
func (nopDriver) Close() error                               { return nil }

// scriptedAdapter plays back a queue of apply results. The last result
// repeats once the queue drains. When applyBlock is set, Apply waits on it
// before returning, so a test can hold a worker busy.
type scriptedAdapter struct {
	mu           sync.Mutex
	board        entities.Board
	applyResults []boards.RawResult
	applyCalls   int
	loginCalls   int
	postings     []boards.JobPosting
	loginErr     error
	applyBlock   chan struct{}
}

func (a *scriptedAdapter) Board() entities.Board {
	return a.board
}

func (a *scriptedAdapter) Login(_ context.Context, _ boards.Credentials) (*boards.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.loginCalls++
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return boards.NewSession(a.board, nopDriver{}), nil
}

func (a *scriptedAdapter) Search(_ context.Context, _ *boards.Session, _ entities.SearchCriteria) (*boards.Postings, error) {
	a.mu.Lock()
	page := a.postings
	a.mu.Unlock()

	served := false
	return boards.NewPostings(func(ctx context.Context) ([]boards.JobPosting, bool, error) {
		if served {
			return nil, false, nil
		}
		served = true
		return page, false, nil
	}), nil
}

func (a *scriptedAdapter) Apply(_ context.Context, _ *boards.Session, _ boards.JobPosting) (boards.RawResult, error) {
	a.mu.Lock()

	a.applyCalls++
	if len(a.applyResults) == 0 {
		a.mu.Unlock()
		return boards.RawResult{}, errors.New("no scripted apply result")
	}

	result := a.applyResults[0]
	if len(a.applyResults) > 1 {
		a.applyResults = a.applyResults[1:]
	}
	block := a.applyBlock
	a.mu.Unlock()

	if block != nil {
		<-block
	}
	return result, nil
}

type mockRegistry struct {
	adapter boards.Adapter
}

func (r mockRegistry) Get(board entities.Board) (boards.Adapter, error) {
	if board != r.adapter.Board() {
		return nil, errors.Errorf("unsupported job board: %v", board)
	}
	return r.adapter, nil
}

type mockCredentials struct{}

func (mockCredentials) Get(_ context.Context, _ int64, _ entities.Board) (boards.Credentials, error) {
	return boards.Credentials{Email: "user@example.com", Password: "secret"}, nil
}
