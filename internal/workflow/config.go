// Package workflow drives one file through upload, remote sort, result
// polling and download, and projects that state into what the page shows.
package workflow

import (
	"fmt"
	"strings"
	"time"
)

// Defaults mirror the deployed buckets, function and timings.
const (
	DefaultInputBucket     = "sort-in-bucket"
	DefaultOutputBucket    = "sort-out-bucket"
	DefaultInputPrefix     = "unsorted/"
	DefaultFunctionName    = "file-sorting-function"
	DefaultPollDelay       = 5 * time.Second
	DefaultPollInterval    = time.Second
	DefaultPollMaxInterval = 10 * time.Second
	DefaultPollTimeout     = 2 * time.Minute
	DefaultPollMaxAttempts = 6
	DefaultHideDelay       = 2 * time.Second
	DefaultLinkTTL         = 60 * time.Second
)

// Config controls a Controller.
type Config struct {
	AllowedExtensions []string
	InputBucket       string
	OutputBucket      string
	InputPrefix       string
	FunctionName      string

	// PollDelay is the wait between invoke and the first result check.
	PollDelay time.Duration
	// PollInterval is the first backoff interval after a missing result.
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	// PollTimeout bounds the whole poll loop, PollDelay excluded.
	PollTimeout time.Duration
	// PollMaxAttempts caps result checks. 1 means a single check.
	PollMaxAttempts int

	HideDelay     time.Duration
	LinkTTL       time.Duration
	OutputKeyRule string

	// Now is the clock used for job timestamps. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AllowedExtensions: []string{"txt", "csv"},
		InputBucket:       DefaultInputBucket,
		OutputBucket:      DefaultOutputBucket,
		InputPrefix:       DefaultInputPrefix,
		FunctionName:      DefaultFunctionName,
		PollDelay:         DefaultPollDelay,
		PollInterval:      DefaultPollInterval,
		PollMaxInterval:   DefaultPollMaxInterval,
		PollTimeout:       DefaultPollTimeout,
		PollMaxAttempts:   DefaultPollMaxAttempts,
		HideDelay:         DefaultHideDelay,
		LinkTTL:           DefaultLinkTTL,
		OutputKeyRule:     RuleFunction,
		Now:               time.Now,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("no allowed extensions")
	}
	if c.InputBucket == "" || c.OutputBucket == "" {
		return fmt.Errorf("input and output buckets are required")
	}
	if c.FunctionName == "" {
		return fmt.Errorf("function name is required")
	}
	if c.PollDelay < 0 || c.HideDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.PollInterval <= 0 || c.PollMaxInterval <= 0 || c.PollTimeout <= 0 {
		return fmt.Errorf("poll interval, max interval and timeout must be positive")
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("poll max attempts must be at least 1")
	}
	if c.LinkTTL <= 0 {
		return fmt.Errorf("link ttl must be positive")
	}
	if _, err := OutputKeyFunc(c.OutputKeyRule); err != nil {
		return err
	}
	return nil
}

// allows reports whether ext (lower-case, no dot) may be submitted.
func (c Config) allows(ext string) bool {
	for _, a := range c.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// extensionHint renders the allow-list for messages: ".txt or .csv".
func (c Config) extensionHint() string {
	exts := make([]string, len(c.AllowedExtensions))
	for i, e := range c.AllowedExtensions {
		exts[i] = "." + strings.TrimPrefix(strings.ToLower(e), ".")
	}
	switch len(exts) {
	case 1:
		return exts[0]
	default:
		return strings.Join(exts[:len(exts)-1], ", ") + " or " + exts[len(exts)-1]
	}
}
