package model

import "time"

type DispatchStatus string

const (
	DispatchQueued DispatchStatus = "queued"
	DispatchSent   DispatchStatus = "sent"
	DispatchFailed DispatchStatus = "failed"

	// Advanced out-of-band by the provider's status callback against
	// already-sent records. The engine never writes these.
	DispatchDelivered DispatchStatus = "delivered"
	DispatchRead      DispatchStatus = "read"
)

// DispatchRecord is the durable outcome of one recipient within one
// operation. Created queued, written exactly once by the worker that
// owns the recipient, never deleted by the engine.
type DispatchRecord struct {
	ID              string         `json:"id"`
	OperationID     string         `json:"operationId"`
	Recipient       string         `json:"recipient"`
	MessageType     MessageType    `json:"messageType"`
	Body            string         `json:"body,omitempty"`
	MediaID         string         `json:"mediaId,omitempty"`
	Status          DispatchStatus `json:"status"`
	RemoteMessageID *string        `json:"remoteMessageId,omitempty"`
	LastError       *string        `json:"lastError,omitempty"`
	RetryCount      int            `json:"retryCount"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}
