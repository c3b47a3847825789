package usecases

import "errors"

var (
	ErrUnknownTeam        = errors.New("unknown team")
	ErrForbidden          = errors.New("not allowed for your role")
	ErrInvalidRole        = errors.New("role must be worker, foreman or admin")
	ErrBitrixUserNotFound = errors.New("no Bitrix user with this email")
	ErrNotLinked          = errors.New("bitrix account is not linked")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("admin login is not configured")
)
