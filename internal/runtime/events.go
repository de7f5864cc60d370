package runtime

// Event topics published by the runtime monitor module.
const (
	TopicScanCompleted    = "runtime.scan.completed"
	TopicMetricsCollected = "runtime.metrics.collected"
	TopicAlertTriggered   = "runtime.alert.triggered"
)

// ScanCompletedEvent is the payload for TopicScanCompleted.
type ScanCompletedEvent struct {
	Processes  int `json:"processes"`
	Services   int `json:"services"`
	Containers int `json:"containers"`
}
