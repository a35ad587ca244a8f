package task

import "errors"

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidState = errors.New("operation not allowed in current task state")
	ErrValidation   = errors.New("validation failed")
)
