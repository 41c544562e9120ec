package models

// BackendStatus is one row of the router status report.
type BackendStatus struct {
	Index     int    `json:"index"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
	SizeHuman string `json:"size_human"`
	Active    bool   `json:"active"`
	Available bool   `json:"available"`
	Connected bool   `json:"connected"`
}

// RouterStatus is the operator view of every configured backend.
type RouterStatus struct {
	ActiveIndex  int             `json:"active_index"`
	MultiBackend bool            `json:"multi_backend"`
	LimitBytes   int64           `json:"limit_bytes"`
	WarnBytes    int64           `json:"warn_bytes"`
	Backends     []BackendStatus `json:"backends"`
}

// SwitchRequest asks the router to make a backend active.
type SwitchRequest struct {
	Index *int `json:"index"`
}

// SwitchResponse reports the result of a manual switch.
type SwitchResponse struct {
	PreviousIndex int `json:"previous_index"`
	ActiveIndex   int `json:"active_index"`
}
