package domain

import "errors"

var (
	ErrReceiveTimeout   = errors.New("receive timed out")
	ErrNoLocalMember    = errors.New("group has no local mailbox")
	ErrRegistryClosed   = errors.New("registry closed")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownReplyKind = errors.New("unknown reply kind")
)
