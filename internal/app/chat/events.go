package chat

import "encoding/json"

// EventType names a real-time event carried in the envelope's type field.
type EventType string

const (
	// Server -> client.
	EventOnlineUsers            EventType = "getOnlineUsers"
	EventNewMessage             EventType = "newMessage"
	EventMessageDelivered       EventType = "messageDelivered"
	EventBatchMessagesDelivered EventType = "batchMessagesDelivered"
	EventMessageSeen            EventType = "messageSeen"
	EventTokenUpdate            EventType = "tokenUpdate"
	EventError                  EventType = "error"

	// Client -> server.
	EventMarkMessageSeen EventType = "markMessageSeen"
)

// Envelope is the wire frame for every websocket event.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageRefPayload identifies a message by id.
type MessageRefPayload struct {
	MessageID string `json:"messageId"`
}

// BatchDeliveredPayload tells a sender that all its pending messages to DeliveredBy are delivered.
type BatchDeliveredPayload struct {
	DeliveredBy string `json:"deliveredBy"`
}

// TokenUpdatePayload carries a refreshed access token.
type TokenUpdatePayload struct {
	Token string `json:"token"`
}

// ErrorPayload carries a business error code for a failed inbound event.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Encode builds the wire frame for an event.
func Encode(event EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Payload: raw})
}
