package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidMessage = errors.New("invalid message format")
)

// Envelope types sent from server to client
const (
	TypeStatus = "status"
	TypeEcho   = "echo"
	TypeError  = "error"
)

// InvalidFormatMessage is the error text sent back for undecodable input
const InvalidFormatMessage = "Invalid message format."

// Envelope is a server-to-client message. Which fields are written depends
// on Type, see Encode.
type Envelope struct {
	Type           string
	Message        string
	ClientMessage  string
	ServerResponse string
}

// ClientMessage is the only shape a client may send
type ClientMessage struct {
	Message string `json:"message"`
}

// Wire shapes. Field order here is the order on the wire.
type statusFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type echoFrame struct {
	Type           string `json:"type"`
	ClientMessage  string `json:"client_message"`
	ServerResponse string `json:"server_response"`
}

type clientFrame struct {
	Message *string `json:"message"`
}

// Status builds a status envelope
func Status(message string) Envelope {
	return Envelope{Type: TypeStatus, Message: message}
}

// Error builds an error envelope
func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}

// Echo builds the echo envelope broadcast for a client message received in a room
func Echo(clientMessage, roomCode string) Envelope {
	return Envelope{
		Type:           TypeEcho,
		ClientMessage:  clientMessage,
		ServerResponse: fmt.Sprintf("Server heard: '%s' in room '%s'", clientMessage, roomCode),
	}
}

// Encode serializes an envelope. The same envelope always yields the same bytes.
func Encode(e Envelope) []byte {
	var frame interface{}
	switch e.Type {
	case TypeEcho:
		frame = echoFrame{Type: TypeEcho, ClientMessage: e.ClientMessage, ServerResponse: e.ServerResponse}
	default:
		// status, error and anything unrecognized share the {type, message} shape
		frame = statusFrame{Type: e.Type, Message: e.Message}
	}

	// Marshaling a struct of strings cannot fail
	data, _ := json.Marshal(frame)
	return data
}

// EncodeClient serializes a client message
func EncodeClient(m ClientMessage) []byte {
	data, _ := json.Marshal(m)
	return data
}

// Decode parses a client frame. It requires a JSON object carrying a
// non-empty string "message"; other fields are ignored.
func Decode(data []byte) (ClientMessage, error) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if frame.Message == nil {
		return ClientMessage{}, fmt.Errorf("%w: missing message field", ErrInvalidMessage)
	}
	if *frame.Message == "" {
		return ClientMessage{}, fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}

	return ClientMessage{Message: *frame.Message}, nil
}

// DecodeEnvelope parses a server frame. Clients use it; the server never
// reads envelopes.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var raw struct {
		Type           string `json:"type"`
		Message        string `json:"message"`
		ClientMessage  string `json:"client_message"`
		ServerResponse string `json:"server_response"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type field", ErrInvalidMessage)
	}

	return Envelope{
		Type:           raw.Type,
		Message:        raw.Message,
		ClientMessage:  raw.ClientMessage,
		ServerResponse: raw.ServerResponse,
	}, nil
}
