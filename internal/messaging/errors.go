package messaging

import "errors"

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindForbidden
	KindConflict
)

const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeForbiddenBlocked = "FORBIDDEN:BLOCKED"
	CodeForbiddenNotConn = "FORBIDDEN:NOT_CONTACT"
	CodeConflictUnblock  = "CONFLICT:UNBLOCK_REQUIRED"
	CodeInternal         = "INTERNAL"
)

// Error is a classified messaging error. Sentinels are compared with errors.Is.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrInvalidUserID  = &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, msg: "invalid user id"}
	ErrSelfTarget     = &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, msg: "cannot target yourself"}
	ErrEmptyContent   = &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, msg: "message content is required"}
	ErrContentTooLong = &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, msg: "message content must be at most 1000 characters"}

	ErrUserNotFound = &Error{Kind: KindNotFound, Code: CodeNotFound, msg: "user not found"}

	ErrBlockedByRecipient   = &Error{Kind: KindForbidden, Code: CodeForbiddenBlocked, msg: "you have been blocked by this user"}
	ErrNotConnected         = &Error{Kind: KindForbidden, Code: CodeForbiddenNotConn, msg: "no chat relationship with this user"}
	ErrNoConversationAccess = &Error{Kind: KindForbidden, Code: CodeForbiddenNotConn, msg: "no conversation with this user"}

	ErrUnblockRequired = &Error{Kind: KindConflict, Code: CodeConflictUnblock, msg: "user is blocked; unblock before accepting chat"}
)

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the caller-visible code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
