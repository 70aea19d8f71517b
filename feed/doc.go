// Package feed holds the pieces shared by all three agency adapters:
// the raw-bytes fetcher, the Adapter interface the poller drives, and
// the error taxonomy that keeps upstream garbage from becoming process
// failures.
package feed
