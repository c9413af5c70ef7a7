package app

import (
	"fmt"
	"net/http"
)

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

func errNotAuthenticated() *DomainError {
	return domainError(http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated", nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errNotFound(entity string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", entity+" not found", nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func errTitleTaken(title string) *DomainError {
	return domainError(http.StatusConflict, "NOTE_TITLE_TAKEN", "A note with this title already exists", map[string]any{"title": title})
}

func errChatBusy() *DomainError {
	return domainError(http.StatusConflict, "CHAT_BUSY", "A reply is already in progress for this chat", nil)
}

func errAIResponse() *DomainError {
	return domainError(http.StatusBadGateway, "AI_RESPONSE_FAILED", "Failed to get AI response", nil)
}
