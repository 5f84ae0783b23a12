package config

import "errors"

var (
	ErrFileNotFound   = errors.New("config file not found")
	ErrFileRead       = errors.New("cannot read config file")
	ErrInvalid        = errors.New("invalid config file")
	ErrEmptyValue     = errors.New("value cannot be empty")
	ErrThreadsHint    = errors.New("cpu.max-threads-hint must be between 1 and 100")
	ErrInitThreads    = errors.New("randomx.init must be -1 (auto) or a positive thread count")
	ErrInvalidStorage = errors.New("randomx.storage must be queued or single")
)
