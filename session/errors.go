package session

import "errors"

// Error kinds returned by store operations. Every failing operation returns
// exactly one of these, never a wrapped or decorated variant, so callers can
// use errors.Is against them directly.
//
// Several distinct conditions are deliberately collapsed onto ErrUnknownProject
// to avoid leaking project existence to a caller who is neither the host nor
// a guest: "project does not exist", "caller is neither host nor guest", and
// (for request_join_project specifically) "project is offline" all surface
// as ErrUnknownProject. Do not split these apart.
var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUnknownProject    = errors.New("no such project")
	ErrUnknownWorktree   = errors.New("no such worktree")
	ErrUnknownChannel    = errors.New("no such channel")
	ErrUnknownRoom       = errors.New("no such room")
	ErrNotInRoom         = errors.New("not in room")
	ErrAlreadyInRoom     = errors.New("cannot participate in more than one room at once")
	ErrRecipientBusy     = errors.New("recipient is already on another call")
	ErrDuplicateInvite   = errors.New("cannot call the same user more than once")
	ErrNotBeingCalled    = errors.New("user is not being called")
	ErrProjectOffline    = errors.New("project is not online")
)
