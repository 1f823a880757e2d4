package types

// Telemetry metric names shared by the Prometheus and CloudWatch recorders.
// All components MUST use these constants.
const (
	// Metric Names
	MetricNotificationsReceived = "NotificationsReceived"
	MetricItemsEnqueued         = "ItemsEnqueued"
	MetricItemsDropped          = "ItemsDropped"
	MetricItemsPersisted        = "ItemsPersisted"
	MetricPersistFailures       = "PersistFailures"
	MetricAlertsDerived         = "AlertsDerived"
	MetricTransportReconnects   = "TransportReconnects"
	MetricForwardFailures       = "ForwardFailures"
	MetricQueueDepth            = "QueueDepth"
	MetricPersistLatency        = "PersistLatency"

	// Dimension Keys
	DimQueue   = "Queue"
	DimReason  = "Reason"
	DimKind    = "Kind"
	DimChannel = "Channel"
	DimTarget  = "Target"

	// Metric Namespace
	MetricNamespace = "EventPipe"
)

// Drop reasons recorded against MetricItemsDropped.
const (
	DropReasonDecode      = "decode"
	DropReasonInvalid     = "invalid"
	DropReasonQueueFull   = "queue_full"
	DropReasonStopped     = "stopped"
	DropReasonNotCritical = "not_critical"
)

// Item kinds recorded against persistence metrics.
const (
	KindEvent = "event"
	KindAlert = "alert"
)
