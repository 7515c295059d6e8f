// Package protocol defines the envelopes exchanged between the chat server
// and its clients and the newline-delimited JSON codec that frames them.
package protocol

import "time"

// Type tags an envelope.
type Type string

// Envelope types
const (
	TypeMessage         Type = "message"
	TypeNicknameRequest Type = "nickname_request"
	TypeNickname        Type = "nickname"
	TypeRoomInfo        Type = "room_info"
	TypeCommandResponse Type = "command_response"
	TypeClearScreen     Type = "clear_screen"
)

// TimestampLayout is the clock format carried in the timestamp field.
const TimestampLayout = "15:04:05"

// Envelope is a single unit on the wire.
type Envelope struct {
	Type      Type   `json:"type"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	IsSystem  bool   `json:"is_system,omitempty"`
	RoomName  string `json:"room_name,omitempty"`
}

// Stamp formats t the way envelopes carry it.
func Stamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// NewMessage builds a chat message. System messages are announcements
// produced by the server itself.
func NewMessage(content string, at time.Time, system bool) Envelope {
	return Envelope{
		Type:      TypeMessage,
		Content:   content,
		Timestamp: Stamp(at),
		IsSystem:  system,
	}
}

// NewCommandResponse builds a private reply to a command.
func NewCommandResponse(content string, at time.Time) Envelope {
	return Envelope{
		Type:      TypeCommandResponse,
		Content:   content,
		Timestamp: Stamp(at),
	}
}

func NewNicknameRequest() Envelope {
	return Envelope{Type: TypeNicknameRequest}
}

func NewNickname(nickname string) Envelope {
	return Envelope{Type: TypeNickname, Content: nickname}
}

func NewRoomInfo(room string) Envelope {
	return Envelope{Type: TypeRoomInfo, RoomName: room}
}

func NewClearScreen() Envelope {
	return Envelope{Type: TypeClearScreen}
}
