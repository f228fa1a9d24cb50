package api

// StatusResponse from GET /status.
type StatusResponse struct {
	Active  bool   `json:"active"`
	Version string `json:"version"`
	// Time is the engine clock in milliseconds since epoch.
	Time int64 `json:"time"`
}

// ServerInfo from GET /servers/{id}.
type ServerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Region   string `json:"region"`
	Capacity int    `json:"capacity"`
	Online   int    `json:"online"`
}
