package pegasus

import "errors"

// Error taxonomy (spec §7). Each sentinel is wrapped with errors.Is
// support so callers can test with errors.Is(err, pegasus.ErrTimeout)
// even when the core attaches request-specific context.
var (
	// ErrInvalidArgument covers malformed inputs: oversize hashKey,
	// a nil key where one is required, a malformed encoded key. Never
	// retried.
	ErrInvalidArgument = errors.New("pegasus: invalid argument")

	// ErrTimeout is surfaced once an operation's deadline is exhausted.
	ErrTimeout = errors.New("pegasus: operation timed out")

	// ErrConnection is a transport-level failure (dial, reset, broken
	// pipe). The Executor retries this internally within the caller's
	// deadline; callers only see it once retries are exhausted.
	ErrConnection = errors.New("pegasus: connection error")

	// ErrRoutingStale is raised when a replica reports it is not (or
	// not yet) the primary for a partition. The Executor treats this
	// as a trigger to refresh metadata and retry; it escapes to the
	// caller only when retries run out the deadline.
	ErrRoutingStale = errors.New("pegasus: routing information is stale")

	// ErrApplication wraps a typed server error code (write conflict,
	// not-found for a strict op, invalid TTL, ...). Never retried.
	ErrApplication = errors.New("pegasus: application error")

	// ErrCancelled is surfaced when the client is closed or a caller's
	// context is cancelled out from under a pending call.
	ErrCancelled = errors.New("pegasus: cancelled")

	// ErrClientClosed is returned by any facade call made after Close.
	ErrClientClosed = errors.New("pegasus: client is closed")

	// ErrSessionDead / ErrConnDead mirror the teacher's session-local
	// sentinels (ErrBrokerDead / ErrConnDead): a session that has
	// permanently stopped accepting work, and a connection that died
	// mid-flight.
	ErrSessionDead = errors.New("pegasus: session is dead")
	ErrConnDead    = errors.New("pegasus: connection is dead")

	// ErrCorrelationIDMismatch indicates a response's sequence id did
	// not match any pending call; this should never happen absent a
	// protocol bug or a stale TCP connection reused by the OS.
	ErrCorrelationIDMismatch = errors.New("pegasus: correlation id mismatch")

	// ErrNoMetaServers is returned when the client is configured with
	// an empty meta server list.
	ErrNoMetaServers = errors.New("pegasus: no meta servers configured")

	// ErrScanFinished is the idempotent end-of-scan sentinel (spec §8
	// "idempotent cursor end").
	ErrScanFinished = errors.New("pegasus: scanner exhausted")
)

// ApplicationError carries a server-assigned error code alongside
// ErrApplication, for callers that need to branch on the exact code
// (e.g. distinguishing "not found" from "write conflict").
type ApplicationError struct {
	Code int32
	Op   string
}

func (e *ApplicationError) Error() string {
	return "pegasus: application error " + errCodeString(e.Code) + " during " + e.Op
}

func (e *ApplicationError) Unwrap() error { return ErrApplication }

// server error codes referenced by spec §4.6/§7 ("ERR_INVALID_STATE",
// "ERR_OBJECT_NOT_FOUND", "ERR_PARENT_PARTITION_MISUSED", and the normal
// application codes a storage reply can carry).
const (
	ErrOK                        int32 = 0
	ErrObjectNotFound            int32 = 301
	ErrInvalidState              int32 = 302
	ErrParentPartitionMisused    int32 = 303
	ErrNotPrimary                int32 = 304
	ErrTryAgain                  int32 = 305
	ErrCapacityExceeded          int32 = 306
	ErrRecordNotFound            int32 = 307
	ErrInvalidParameters         int32 = 308
)

func errCodeString(code int32) string {
	switch code {
	case ErrOK:
		return "OK"
	case ErrObjectNotFound:
		return "ERR_OBJECT_NOT_FOUND"
	case ErrInvalidState:
		return "ERR_INVALID_STATE"
	case ErrParentPartitionMisused:
		return "ERR_PARENT_PARTITION_MISUSED"
	case ErrNotPrimary:
		return "ERR_NOT_PRIMARY"
	case ErrTryAgain:
		return "ERR_TRY_AGAIN"
	case ErrCapacityExceeded:
		return "ERR_CAPACITY_EXCEEDED"
	case ErrRecordNotFound:
		return "ERR_RECORD_NOT_FOUND"
	case ErrInvalidParameters:
		return "ERR_INVALID_PARAMETERS"
	default:
		return "ERR_UNKNOWN"
	}
}

// isRoutingError reports whether a storage/meta error code indicates
// the contacted replica is not (or not yet) authoritative, per spec
// §4.6's routing-error classification.
func isRoutingError(code int32) bool {
	switch code {
	case ErrInvalidState, ErrObjectNotFound, ErrParentPartitionMisused, ErrNotPrimary, ErrTryAgain:
		return true
	default:
		return false
	}
}
