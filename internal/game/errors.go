package game

import "errors"

var (
	ErrDuplicateMember = errors.New("nickname already in room")
	ErrMemberNotFound  = errors.New("member not found")
	ErrInvalidNickname = errors.New("invalid nickname")
	ErrInvalidRoom     = errors.New("invalid room id")
)
