// Package protocol implements the JSON wire format exchanged over the
// realtime room connection.
//
// Client to server:
//
//	{"message": "hi"}
//
// Server to client:
//
//	{"type":"status","message":"Welcome! Connected to room 'abc12'."}
//	{"type":"echo","client_message":"hi","server_response":"Server heard: 'hi' in room 'abc12'"}
//	{"type":"error","message":"Invalid message format."}
//
// Encode is deterministic: the same Envelope always produces byte-identical
// output. Decode errors wrap ErrInvalidMessage and are recoverable; the
// connection reports them to the sender and keeps reading.
package protocol
