package profile

import "github.com/pingcap/errors"

var (
	ErrConnectionNotFound    = errors.New("connection profile not found")
	ErrMissingDefaultProfile = errors.New("connection profile \"default\" is not configured")
	ErrMissingHost           = errors.New("no host configured for database connection")
	ErrConflictingPort       = errors.New("port must be configured within host parameter (like localhost:3306)")
	ErrInvalidPort           = errors.New("invalid port in host parameter")
)
