package executor

import "github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"

// MaxConnectionRetries bounds reconnects for a single statement.
const MaxConnectionRetries = 5

type RetryPolicy struct {
	MaxRetries int
	Retryable  func(error) bool
}

// DefaultRetryPolicy retries lost connections only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: MaxConnectionRetries,
		Retryable:  driver.IsTransient,
	}
}

// ShouldRetry reports whether a statement that already used retries
// reconnects may try again after err.
func (p RetryPolicy) ShouldRetry(retries int, err error) bool {
	return retries < p.MaxRetries && p.Retryable != nil && p.Retryable(err)
}
