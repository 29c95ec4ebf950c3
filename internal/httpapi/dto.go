package httpapi

// destinationDTO is the wire shape of a Destination in request/response
// bodies (spec.md §6): {type:"TG", chat_id, thread_id?} or
// {type:"SL", channel}. chat_id is carried as a string per spec.md §3's
// data model (it may be large and may be negative).
type destinationDTO struct {
	Type     string `json:"type"`
	ChatID   string `json:"chat_id,omitempty"`
	ThreadID *int   `json:"thread_id,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// attachRequest is the POST /attach request body.
type attachRequest struct {
	SessionID   string         `json:"session_id"`
	Path        string         `json:"path,omitempty"`
	Destination destinationDTO `json:"destination"`
	Preset      string         `json:"preset"`
	ReplayCount int            `json:"replay_count,omitempty"`
}

// attachResponse is the 201 response body for POST /attach.
type attachResponse struct {
	Attached       bool           `json:"attached"`
	SessionID      string         `json:"session_id"`
	Destination    destinationDTO `json:"destination"`
	Preset         string         `json:"preset"`
	MessageID      string         `json:"message_id"`
	ReplayedEvents int            `json:"replayed_events"`
}

// detachRequest is the POST /detach request body.
type detachRequest struct {
	SessionID   string         `json:"session_id"`
	Destination destinationDTO `json:"destination"`
}

// errorResponse is the single-line JSON error body spec.md §7 requires.
type errorResponse struct {
	Error string `json:"error"`
}

// sessionDTO is one entry of the GET /sessions response.
type sessionDTO struct {
	SessionID    string              `json:"session_id"`
	Path         string              `json:"path"`
	Destinations map[string][]string `json:"destinations"`
	SSEClients   int                 `json:"sse_clients"`
}

// sessionsResponse is the GET /sessions response body.
type sessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

// healthResponse is the GET /health response body.
type healthResponse struct {
	Status          string            `json:"status"`
	UptimeSeconds   float64           `json:"uptime_seconds"`
	SessionsWatched int               `json:"sessions_watched"`
	Bots            map[string]string `json:"bots"`
}
