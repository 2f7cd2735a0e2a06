package instances

type SyncError struct {
	ComponentId string `json:"component_uuid"`
	Component   string `json:"component"`
	Error       string `json:"error"`
}

// Result of syncing components of an instance.
type SyncResult struct {
	InstanceId       string      `json:"instance_uuid"`
	TotalComponents  int         `json:"total_components"`
	SyncedComponents int         `json:"synced_components"`
	Errors           []SyncError `json:"errors"`
}
