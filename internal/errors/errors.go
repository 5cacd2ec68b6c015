package errors

import "errors"

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotActive = errors.New("task failed, no active download")
	ErrTooManyAssets = errors.New("too many assets in task")
)
