package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrUserNotFound      = errors.New("user not found")

	ErrPolicyNotFound     = errors.New("policy not found")
	ErrNoText             = errors.New("could not extract enough text from the document")
	ErrUnsupportedContent = errors.New("unsupported file type")
	ErrFileTooLarge       = errors.New("file too large")

	ErrQuestionEmpty = errors.New("question is empty")

	ErrForbidden = errors.New("admin access required")
)
