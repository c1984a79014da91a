// Package portal logs into the university web portal and scrapes the
// student's assignment due dates.
package portal

import (
	"context"
	"errors"

	"github.com/awnumar/memguard"
)

var (
	// ErrAuth means the portal rejected the credentials.
	ErrAuth = errors.New("portal: authentication failed")
	// ErrUnavailable means the portal could not be reached or its markup
	// could not be parsed.
	ErrUnavailable = errors.New("portal: unavailable")
)

// Credentials are the portal login and password. The password lives in
// locked memory and is destroyed by the owner after the call. Password.String()
// aliases that memory, so a Fetcher must copy it if it keeps the value.
type Credentials struct {
	Login    string
	Password *memguard.LockedBuffer
}

// Deadline is a raw scraped record; DueDate is a dd.mm.yyyy string.
type Deadline struct {
	Course  string
	Task    string
	DueDate string
}

// Result is what a successful login and scrape yields.
type Result struct {
	Deadlines []Deadline
	ProfileID *string
	FullName  *string
}

// Fetcher authenticates against the portal and returns the scraped data.
type Fetcher interface {
	Fetch(ctx context.Context, creds Credentials) (*Result, error)
}
