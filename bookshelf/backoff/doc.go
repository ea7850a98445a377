// Package backoff computes retry delays: exponential growth, full jitter and a cap.
package backoff
