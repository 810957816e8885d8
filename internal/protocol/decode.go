package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

var validate = validator.New()

// Decode parses an inbound frame and validates its payload.
// Malformed JSON and unknown types wrap domain.ErrProtocol and return no frame.
// Payload problems wrap domain.ErrValidation and still return the decoded frame,
// so callers can echo its requestId.
func Decode(data []byte) (Frame, error) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON message", domain.ErrProtocol)
	}

	var frame Frame
	switch baseMsg.Type {
	case TypeHello:
		frame = &HelloMessage{}
	case TypeSendMessage:
		frame = &SendMessageRequest{}
	case TypeTyping, TypeStopTyping:
		frame = &TypingRequest{}
	case TypeMarkRead:
		frame = &MarkReadRequest{}
	case TypeGetOnlineUsers:
		frame = &GetOnlineUsersRequest{}
	case "":
		return nil, fmt.Errorf("%w: message type is required", domain.ErrProtocol)
	default:
		return nil, fmt.Errorf("%w: unknown message type: %s", domain.ErrProtocol, baseMsg.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("%w: invalid %s message", domain.ErrProtocol, baseMsg.Type)
	}
	if baseMsg.Type == TypeHello {
		return frame, nil
	}
	if err := Validate(frame); err != nil {
		return frame, err
	}
	return frame, nil
}

// Validate runs struct-tag validation and reports failures as domain.ErrValidation.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describe(err))
	}
	return nil
}

// ValidateUserID checks that id is a well-formed user identifier.
func ValidateUserID(id string) error {
	if err := validate.Var(id, "required,max=128,printascii"); err != nil {
		return fmt.Errorf("%w: invalid user id", domain.ErrValidation)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", lowerFirst(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ErrorFrom maps an error from the chat layer onto an error frame.
func ErrorFrom(err error, requestID string) ErrorMessage {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return NewError(ErrorCodeUnauthorized, err.Error(), requestID)
	case errors.Is(err, domain.ErrProtocol):
		return NewError(ErrorCodeInvalidMessage, err.Error(), requestID)
	case errors.Is(err, domain.ErrValidation):
		return NewError(ErrorCodeValidationFailed, err.Error(), requestID)
	case errors.Is(err, domain.ErrGateway):
		return NewError(ErrorCodeStorageFailed, "storage unavailable, please retry", requestID)
	default:
		return NewError(ErrorCodeInternalError, "internal error", requestID)
	}
}
