package app

import "fmt"

// DomainError is a deck-service failure that maps directly onto an API
// response: Status becomes the HTTP status, Code and Message the JSON
// error body. Anything that is not a DomainError is reported as a 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
