package boards

import (
	"context"

	"github.com/pkg/errors"
)

// ErrElementNotFound is returned by driver operations when a selector
// matches nothing on the current page.
var ErrElementNotFound = errors.New("element not found")

// Driver abstracts one browser page. The concrete implementation (a CDP
// bridge, a remote selenium grid, a test fake) is injected from outside;
// adapters only speak selectors and URLs through it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	TextAll(ctx context.Context, selector string) ([]string, error)
	AttrAll(ctx context.Context, selector, attribute string) ([]string, error)
	PageSource(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// DriverFactory opens a fresh browser page. Each dispatched action gets its
// own driver for the lifetime of that action.
type DriverFactory func(ctx context.Context) (Driver, error)
