package occupancy

import "time"

// Status is the outcome of a scan.
type Status string

const (
	StatusEntered Status = "entered"
	StatusExited  Status = "exited"
	StatusUpdated Status = "updated"
	StatusIgnored Status = "ignored"
	StatusFull    Status = "full"
	StatusError   Status = "error"
)

// Result describes what a scan did.
type Result struct {
	Status       Status     `json:"status"`
	Plate        string     `json:"plate,omitempty"`
	Area         string     `json:"area,omitempty"`
	AreaName     string     `json:"area_name,omitempty"`
	PreviousArea string     `json:"previous_area,omitempty"`
	Occupancy    *int       `json:"occupancy,omitempty"`
	Time         *time.Time `json:"time,omitempty"`
	Note         string     `json:"note,omitempty"`
	Message      string     `json:"message,omitempty"`
	SessionID    int64      `json:"session_id,omitempty"`

	// FreedArea is set when the scan brought a full area back under capacity.
	FreedArea string `json:"-"`
}

// Mutated reports whether the scan changed any stored state.
func (r Result) Mutated() bool {
	switch r.Status {
	case StatusEntered, StatusExited, StatusUpdated:
		return true
	}
	return false
}

func intPtr(v int) *int { return &v }
