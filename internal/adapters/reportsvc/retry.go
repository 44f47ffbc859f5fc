package reportsvc

import "time"

// RetryConfig holds retry settings for generation requests.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the defaults used when nothing is
// configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}
