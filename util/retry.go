package util

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	retryAttempts = 3
	retryInterval = 500 * time.Millisecond
	retryMax      = 5 * time.Second
)

func retryPolicy() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = retryInterval
	bf.MaxInterval = retryMax
	return backoff.WithMaxRetries(bf, retryAttempts)
}

// HTTPWithRetry calls f until it returns a response without a transport error
// or the retry budget is spent. Non-2xx responses are returned as is.
func HTTPWithRetry(f func(string) (*http.Response, error), url string) (*http.Response, error) {
	var resp *http.Response
	err := backoff.Retry(func() error {
		var err error
		resp, err = f(url)
		return err
	}, retryPolicy())
	if err != nil {
		return nil, errors.Wrapf(err, "requesting %s", url)
	}
	return resp, nil
}
