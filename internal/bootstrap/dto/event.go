package dto

import "time"

const (
	EventBootstrapCompleted = "CatalogBootstrapCompleted"
	EventBootstrapFailed    = "CatalogBootstrapFailed"
	EventResyncRequested    = "CatalogResyncRequested"
)

type BootstrapEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Payload   RunReport `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// ResyncRequestedEvent asks the service to run a bootstrap cycle now.
type ResyncRequestedEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	RequestedBy string    `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}
