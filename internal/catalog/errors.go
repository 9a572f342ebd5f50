package catalog

import "errors"

var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrGroupExists         = errors.New("group name already used")
	ErrApplicationNotFound = errors.New("application not found")
	ErrStaleVersion        = errors.New("version is not newer than the latest published")
	ErrUnregistered        = errors.New("configuration owner is not registered")
	ErrGroupMoving         = errors.New("group keeps being renamed")

	errRenameUnlocked = errors.New("rename requires the system lock")
)

const maxRelockAttempts = 3
