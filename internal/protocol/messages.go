package protocol

// HELLO (client -> server). RunID narrows the stream to one run.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	RunID           string `json:"run_id,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	ActiveRuns      []string `json:"active_runs"`
}

// PROGRESS (server -> client)
type ProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Stage           string `json:"stage"`
	Done            int    `json:"done"`
	Total           int    `json:"total"`
	Percent         int    `json:"percent"`
}

type WarningRef struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// DONE (server -> client), sent once per run.
type DoneMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Status          string       `json:"status"`
	Voxels          int          `json:"voxels"`
	Blocks          int          `json:"blocks"`
	DistinctBlocks  int          `json:"distinct_blocks"`
	Warnings        []WarningRef `json:"warnings"`
	Output          string       `json:"output,omitempty"`
	Code            string       `json:"code,omitempty"`
	Message         string       `json:"message,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// NewProgress fills in the envelope and a 0-100 percentage.
func NewProgress(runID, stage string, done, total int) ProgressMsg {
	pct := 100
	if total > 0 {
		pct = done * 100 / total
	}
	return ProgressMsg{
		Type:            TypeProgress,
		ProtocolVersion: Version,
		RunID:           runID,
		Stage:           stage,
		Done:            done,
		Total:           total,
		Percent:         pct,
	}
}
