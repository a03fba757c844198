package model

import "encoding/json"

type MessageType string

const (
	MessageTypeRegister    MessageType = "register"
	MessageTypeRegistered  MessageType = "registered"
	MessageTypeUnregister  MessageType = "unregister"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypePrintBill   MessageType = "print_bill"
	MessageTypePrintPNG    MessageType = "print_png"
	MessageTypePrinted     MessageType = "printed"
	MessageTypePrintFailed MessageType = "print_failed"
)

// --- WebSocket Messages ---

type WSMessage struct {
	Type      MessageType     `json:"type"`
	AgentKey  string          `json:"agent_key,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
	Bill      json.RawMessage `json:"bill,omitempty"` // decoded by the agent into model.Bill
	Opts      *EncodeOptions  `json:"opts,omitempty"`
	PNGBase64 string          `json:"pngBase64,omitempty"`
	Threshold *int            `json:"threshold,omitempty"`
	Error     string          `json:"error,omitempty"`
}
