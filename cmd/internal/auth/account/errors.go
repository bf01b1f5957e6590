package account

import "errors"

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameTaken is returned when a case-insensitive match already exists.
	ErrUsernameTaken = errors.New("username is in use")
	// ErrInvalidUsername wraps identity's username validation failures.
	ErrInvalidUsername = errors.New("username contains invalid characters")
	// ErrInvalidPassword wraps password policy failures.
	ErrInvalidPassword = errors.New("password does not meet policy")
	// ErrIncorrectPassword is returned when the current password does not match.
	ErrIncorrectPassword = errors.New("password is incorrect")
	// ErrPasswordsDontMatch is returned when the new password and its confirmation differ.
	ErrPasswordsDontMatch = errors.New("passwords don't match")
	// ErrCaptchaFailed is returned when the captcha response was missing or rejected.
	ErrCaptchaFailed = errors.New("invalid captcha response")
)
