package progress

import "errors"

var (
	ErrInvalidProgress  = errors.New("progress must be between 0 and 100")
	ErrProgressNotFound = errors.New("no progress recorded for this video")
)
