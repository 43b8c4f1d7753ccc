// Package apperr defines the closed set of failure kinds the pipeline reports.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindFetch
	KindScrapeBlocked
	KindPublish
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindFetch:
		return "fetch"
	case KindScrapeBlocked:
		return "scrape_blocked"
	case KindPublish:
		return "publish"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error carries the failure kind together with the pipeline stage and the
// natural key of the item it happened to. Key is empty for batch-level errors.
type Error struct {
	Kind  Kind
	Stage string
	Key   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Stage != "" {
		b.WriteString(" [" + e.Stage + "]")
	}
	if e.Key != "" {
		b.WriteString(" key=" + e.Key)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrPublish) works
// regardless of stage and key.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Stage == "" && t.Key == "" && t.Err == nil
}

var (
	ErrConfig        = &Error{Kind: KindConfig}
	ErrFetch         = &Error{Kind: KindFetch}
	ErrScrapeBlocked = &Error{Kind: KindScrapeBlocked}
	ErrPublish       = &Error{Kind: KindPublish}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

func Config(stage string, err error) error {
	return &Error{Kind: KindConfig, Stage: stage, Err: err}
}

func Fetch(stage, key string, err error) error {
	return &Error{Kind: KindFetch, Stage: stage, Key: key, Err: err}
}

func ScrapeBlocked(stage, key string, err error) error {
	return &Error{Kind: KindScrapeBlocked, Stage: stage, Key: key, Err: err}
}

func Publish(stage, key string, err error) error {
	return &Error{Kind: KindPublish, Stage: stage, Key: key, Err: err}
}

func Persistence(stage, key string, err error) error {
	return &Error{Kind: KindPersistence, Stage: stage, Key: key, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MissingSecrets builds a config error naming every variable that was empty.
func MissingSecrets(stage string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	return Config(stage, fmt.Errorf("missing secrets: %s", strings.Join(names, ", ")))
}
