package auth

import "context"

// Checker answers whether a session token belongs to a logged in admin.
// The server wires in LoginChecker, tests swap in LoginTestChecker.
type Checker interface {
	IsLogged(ctx context.Context, token string) (bool, error)
}

var (
	_ Checker = (*LoginChecker)(nil)
	_ Checker = (*LoginTestChecker)(nil)
)
