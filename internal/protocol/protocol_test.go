package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

func TestDecodeSendMessage(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"send_message","receiverId":"u2","content":"hi","requestId":"r1"}`))
	require.NoError(t, err)

	req, ok := frame.(*SendMessageRequest)
	require.True(t, ok)
	assert.Equal(t, "u2", req.ReceiverID)
	assert.Equal(t, "hi", req.Content)
	assert.Equal(t, "r1", req.RequestID)
}

func TestDecodeTypingKeepsType(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"stop_typing","receiverId":"u2"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeStopTyping, frame.MessageType())
	assert.IsType(t, &TypingRequest{}, frame)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad json", `{`, domain.ErrProtocol},
		{"missing type", `{"content":"x"}`, domain.ErrProtocol},
		{"unknown type", `{"type":"join_room"}`, domain.ErrProtocol},
		{"empty content", `{"type":"send_message","receiverId":"u2","content":""}`, domain.ErrValidation},
		{"missing receiver", `{"type":"send_message","content":"hi"}`, domain.ErrValidation},
		{"missing sender", `{"type":"mark_read"}`, domain.ErrValidation},
		{"wrong field type", `{"type":"typing","receiverId":5}`, domain.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecodeHelloSkipsValidation(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"hello"}`))
	require.NoError(t, err)
	hello, ok := frame.(*HelloMessage)
	require.True(t, ok)
	assert.Empty(t, hello.Token)
}

func TestOutboundFrameShape(t *testing.T) {
	data, err := json.Marshal(NewMessagesRead("u2"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeMessagesRead, got["type"])
	assert.Equal(t, "u2", got["readBy"])
	assert.NotZero(t, got["ts"])
}

func TestNewOnlineUsersNeverNull(t *testing.T) {
	data, err := json.Marshal(NewOnlineUsers(nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"userIds":[]`)
}

func TestErrorFrom(t *testing.T) {
	assert.Equal(t, ErrorCodeUnauthorized, ErrorFrom(domain.ErrAuth, "").Code)
	assert.Equal(t, ErrorCodeValidationFailed, ErrorFrom(Validate(&MarkReadRequest{}), "").Code)

	gw := ErrorFrom(errors.Join(domain.ErrGateway, errors.New("disk I/O error")), "r9")
	assert.Equal(t, ErrorCodeStorageFailed, gw.Code)
	assert.Equal(t, "r9", gw.RequestID)
	assert.NotContains(t, gw.Message, "disk")

	assert.Equal(t, ErrorCodeInternalError, ErrorFrom(errors.New("boom"), "").Code)
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, ValidateUserID("user-42"))
	assert.ErrorIs(t, ValidateUserID(""), domain.ErrValidation)
	assert.ErrorIs(t, ValidateUserID("naïve"), domain.ErrValidation)
}

func TestRequestIDOf(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"send_message","receiverId":"u2","content":"hi","requestId":"r-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "r-9", RequestIDOf(frame))

	assert.Equal(t, "", RequestIDOf(NewUserOnline("u1")))
	assert.Equal(t, "", RequestIDOf(nil))
	assert.Equal(t, "r-1", RequestIDOf(NewError(ErrorCodeInternalError, "boom", "r-1")))
}

func TestDecodeValidationFailureKeepsFrame(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"send_message","receiverId":"u2","content":"","requestId":"r-3"}`))
	require.ErrorIs(t, err, domain.ErrValidation)
	require.NotNil(t, frame)
	assert.Equal(t, "r-3", RequestIDOf(frame))

	frame, err = Decode([]byte(`{"type":"join_room","requestId":"r-4"}`))
	require.ErrorIs(t, err, domain.ErrProtocol)
	assert.Nil(t, frame)
}
