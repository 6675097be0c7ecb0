package model

// HealthEventType names a container health event.
type HealthEventType string

const (
	EventContainerStartup   HealthEventType = "container_startup"
	EventContainerShutdown  HealthEventType = "container_shutdown"
	EventContainerRestart   HealthEventType = "container_restart"
	EventServiceBusConnect  HealthEventType = "servicebus_connectivity"
	EventCosmosDBConnect    HealthEventType = "cosmosdb_connectivity"
	EventStuckRequests      HealthEventType = "stuck_threads"
	EventHealthCheckError   HealthEventType = "health_check_error"
	EventServiceBusError    HealthEventType = "servicebus_error"
	EventBatchError         HealthEventType = "batch_error"
	EventFatalError         HealthEventType = "fatal_error"
	EventMetrics            HealthEventType = "metrics"
	healthDocumentType                      = "container_health"
	DefaultContainerID                      = "unknown"
)

// HealthEvent is a record in the container_health collection.
type HealthEvent struct {
	Type        string          `json:"type" bson:"type"`
	ErrorType   HealthEventType `json:"error_type" bson:"error_type"`
	Details     map[string]any  `json:"details" bson:"details"`
	Timestamp   int64           `json:"timestamp" bson:"timestamp"`
	ContainerID string          `json:"container_id" bson:"container_id"`
}

// NewHealthEvent builds an event stamped with the given container and time.
func NewHealthEvent(kind HealthEventType, details map[string]any, containerID string, ts int64) HealthEvent {
	if containerID == "" {
		containerID = DefaultContainerID
	}
	if details == nil {
		details = map[string]any{}
	}
	return HealthEvent{
		Type:        healthDocumentType,
		ErrorType:   kind,
		Details:     details,
		Timestamp:   ts,
		ContainerID: containerID,
	}
}

// HealthFilter narrows a health event listing. Since is a unix timestamp;
// zero means no lower bound.
type HealthFilter struct {
	ContainerID string
	ErrorType   HealthEventType
	Since       int64
	Limit       int
}
