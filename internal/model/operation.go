package model

import "time"

type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationProcessing OperationStatus = "processing"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageDocument:
		return true
	}
	return false
}

// MessageSpec is the resolved payload sent to every recipient of an
// operation. Media references are upload ids resolved before the spec
// reaches the engine; Body doubles as the caption for media types.
type MessageSpec struct {
	Type    MessageType `json:"type"`
	Body    string      `json:"body,omitempty"`
	MediaID string      `json:"mediaId,omitempty"`
}

// Operation is one bulk-dispatch request and its aggregate progress.
type Operation struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	GroupTag    string          `json:"groupTag,omitempty"`
	MessageType MessageType     `json:"messageType"`
	Body        string          `json:"body,omitempty"`
	MediaID     string          `json:"mediaId,omitempty"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Status      OperationStatus `json:"status"`
	LastError   *string         `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

func (o *Operation) Spec() MessageSpec {
	return MessageSpec{Type: o.MessageType, Body: o.Body, MediaID: o.MediaID}
}
