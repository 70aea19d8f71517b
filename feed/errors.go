package feed

import "errors"

// Failure taxonomy for the ingestion pipeline. Everything here is
// recoverable: the degradation ladder is field > stop > train > feed,
// and the smallest granularity that can absorb a failure does.
var (
	// ErrUpstreamUnavailable covers network and HTTP-status failures.
	// The adapter returns an empty batch; the scheduler retries next poll.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrDecode covers malformed protobuf or JSON at whole-feed scope.
	ErrDecode = errors.New("feed decode failed")

	// ErrDecryption covers every Amtrak cipher failure: bad base64,
	// corrupt ciphertext, or a derived key that does not unlock the body.
	ErrDecryption = errors.New("feed decryption failed")

	// ErrPartialRecord marks a single malformed train or stop inside an
	// otherwise valid feed. That record is dropped, the rest kept.
	ErrPartialRecord = errors.New("malformed record")

	// ErrUnknownHeading marks a compass-point value missing from the
	// static table. The heading degrades to absent; the train is kept.
	ErrUnknownHeading = errors.New("unknown heading")
)
