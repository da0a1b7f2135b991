package driver

import (
	"fmt"

	utilerrors "github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/errors"
	"github.com/siddontang/go-mysql/mysql"
)

// Client side codes reported when the server connection dies.
const (
	CodeServerGone     uint16 = 2006
	CodeLostConnection uint16 = 2013
)

type Kind int

const (
	KindPassthrough Kind = iota
	KindConnectionLost
	KindLockWaitTimeout
	KindDeadlock
	KindDuplicateEntry
	KindConfiguration
	KindIncompleteRollback
	KindAsymmetricTransaction
	KindDDLInTransaction
)

var kindNames = map[Kind]string{
	KindPassthrough:           "passthrough",
	KindConnectionLost:        "connection lost",
	KindLockWaitTimeout:       "lock wait timeout",
	KindDeadlock:              "deadlock",
	KindDuplicateEntry:        "duplicate entry",
	KindConfiguration:         "configuration",
	KindIncompleteRollback:    "incomplete rollback",
	KindAsymmetricTransaction: "asymmetric transaction",
	KindDDLInTransaction:      "ddl in transaction",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var codeKinds = map[uint16]Kind{
	CodeServerGone:             KindConnectionLost,
	CodeLostConnection:         KindConnectionLost,
	mysql.ER_LOCK_WAIT_TIMEOUT: KindLockWaitTimeout,
	mysql.ER_LOCK_DEADLOCK:     KindDeadlock,
	mysql.ER_DUP_ENTRY:         KindDuplicateEntry,
}

// Error is the semantic error surfaced by the router.
type Error struct {
	Kind  Kind
	Code  uint16
	msg   string
	cause error
}

func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.cause != nil:
		return e.msg + ": " + e.cause.Error()
	case e.msg != "":
		return e.msg
	case e.cause != nil:
		return e.cause.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error of the same kind. A target carrying a message
// also has to match the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.msg == "" || t.msg == e.msg)
}

var (
	ErrConnectionLost  = &Error{Kind: KindConnectionLost}
	ErrLockWaitTimeout = &Error{Kind: KindLockWaitTimeout}
	ErrDeadlock        = &Error{Kind: KindDeadlock}
	ErrDuplicateEntry  = &Error{Kind: KindDuplicateEntry}
	ErrConfiguration   = &Error{Kind: KindConfiguration}

	ErrIncompleteRollback = &Error{Kind: KindIncompleteRollback, msg: "Rolled back transaction has not been completed correctly."}
	ErrAsymmetricCommit   = &Error{Kind: KindAsymmetricTransaction, msg: "Asymmetric transaction commit."}
	ErrAsymmetricRollback = &Error{Kind: KindAsymmetricTransaction, msg: "Asymmetric transaction rollback."}
	ErrDDLInTransaction   = &Error{Kind: KindDDLInTransaction, msg: "DDL statements are not allowed in transactions"}

	ErrDriverNotFound = &Error{Kind: KindConfiguration, msg: "database driver not found"}
)

// NativeCode extracts the driver error code from err's chain. A connection
// that go-mysql reports as bad counts as a lost connection.
func NativeCode(err error) (uint16, bool) {
	if err == nil {
		return 0, false
	}
	if myErr, ok := utilerrors.FindMyError(err); ok {
		return myErr.Code, true
	}
	if utilerrors.Is(err, mysql.ErrBadConn) {
		return CodeLostConnection, true
	}
	return 0, false
}

// IsTransient reports whether err means the connection died and a reconnect
// may succeed.
func IsTransient(err error) bool {
	code, ok := NativeCode(err)
	return ok && codeKinds[code] == KindConnectionLost
}

func findError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		err = utilerrors.Cause(err)
	}
	return nil, false
}

// KindOf returns the kind carried by err, or KindPassthrough.
func KindOf(err error) Kind {
	if e, ok := findError(err); ok {
		return e.Kind
	}
	return KindPassthrough
}

// MapError converts a driver error into the router's taxonomy. Errors that
// already carry a kind are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := findError(err); ok {
		return err
	}
	code, ok := NativeCode(err)
	if !ok {
		return &Error{Kind: KindPassthrough, cause: err}
	}
	kind, ok := codeKinds[code]
	if !ok {
		kind = KindPassthrough
	}
	return &Error{Kind: kind, Code: code, cause: err}
}
