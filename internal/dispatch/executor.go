package dispatch

import "context"

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_executor.go -package=mocks chathud/internal/dispatch Executor

// Executor runs JavaScript in the active tab. *browser.SessionManager
// implements it.
type Executor interface {
	// Evaluate calls the function expression js with args and returns the
	// JSON encoding of its result.
	Evaluate(ctx context.Context, js string, args ...any) ([]byte, error)
	// ActiveURL returns the URL of the tab Evaluate runs in.
	ActiveURL(ctx context.Context) (string, error)
}
