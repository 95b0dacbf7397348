package employee

import "errors"

var (
	ErrInvalidID          = errors.New("employee: invalid id")
	ErrInvalidEmail       = errors.New("employee: invalid email")
	ErrInvalidName        = errors.New("employee: invalid name")
	ErrInvalidRole        = errors.New("employee: invalid role")
	ErrInvalidReference   = errors.New("employee: invalid reference")
	ErrInvalidPageSize    = errors.New("employee: invalid page size")
	ErrInvalidPageToken   = errors.New("employee: invalid page token")
	ErrEmployeeNotFound   = errors.New("employee: not found")
	ErrEmailAlreadyExists = errors.New("employee: email already exists")
	ErrCompanyNotFound    = errors.New("employee: company not found")
	ErrTeamNotFound       = errors.New("employee: team not found")
	ErrManagerNotFound    = errors.New("employee: reporting manager not found")
)
