package fetcher

import (
	"context"
	"fmt"
)

// Ref identifies one file on the transport: the destination hash of the
// publishing node and the file path it announces.
type Ref struct {
	DestHash string
	Path     string
}

func (r Ref) String() string {
	return r.DestHash + "/" + r.Path
}

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTimeout means the transfer did not complete in time. The link
	// may simply be slow; retry with backoff.
	KindTimeout Kind = iota
	// KindNotFound means the remote node answered and does not have the
	// file. Retrying will not help until the publisher posts it.
	KindNotFound
	// KindLinkDown means no path to the destination could be
	// established. Retry with backoff.
	KindLinkDown
	// KindCorrupt means the transfer completed but the payload failed
	// verification. Not retried; the source bytes are wrong.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not found"
	case KindLinkDown:
		return "link down"
	case KindCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	Ref  Ref
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Ref, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt could plausibly succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindLinkDown
}

// Fetcher retrieves one file from the transport. Implementations must
// honor ctx cancellation and return *Error for transport failures.
type Fetcher interface {
	Fetch(ctx context.Context, ref Ref) ([]byte, error)
}
