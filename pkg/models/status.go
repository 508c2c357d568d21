package models

// CheckStatus classifies the outcome of one site check.
type CheckStatus string

const (
	StatusNew     CheckStatus = "new"
	StatusOK      CheckStatus = "ok"
	StatusChanged CheckStatus = "changed"
	StatusError   CheckStatus = "error"
)

// Reasons written into status records.
const (
	ReasonInitialBaseline = "Initial baseline captured"
	ReasonSizeChanged     = "Viewport size changed"
	ReasonApproved        = "Baseline approved"
	ReasonCaptureFailed   = "Failed to capture screenshot"
)

// SiteStatus is the last known state of one site. Optional fields are pointers or
// omitempty so that an absent value stays distinguishable from a zero value.
type SiteStatus struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	URL                string      `json:"url"`
	LastCheck          string      `json:"lastCheck,omitempty"`
	LoadTime           *int64      `json:"loadTime,omitempty"`
	StatusCode         *int        `json:"statusCode,omitempty"`
	ConsoleErrors      []string    `json:"consoleErrors"`
	Status             CheckStatus `json:"status,omitempty"`
	Reason             string      `json:"reason,omitempty"`
	BaselineScreenshot string      `json:"baselineScreenshot,omitempty"`
	CurrentScreenshot  string      `json:"currentScreenshot,omitempty"`
	DiffScreenshot     string      `json:"diffScreenshot,omitempty"`
	DiffPercent        *float64    `json:"diffPercent,omitempty"`
	Threshold          *float64    `json:"threshold,omitempty"`
}

// Clone returns a deep copy of the record.
func (s SiteStatus) Clone() SiteStatus {
	out := s
	if s.ConsoleErrors != nil {
		out.ConsoleErrors = append([]string{}, s.ConsoleErrors...)
	}
	if s.LoadTime != nil {
		v := *s.LoadTime
		out.LoadTime = &v
	}
	if s.StatusCode != nil {
		v := *s.StatusCode
		out.StatusCode = &v
	}
	if s.DiffPercent != nil {
		v := *s.DiffPercent
		out.DiffPercent = &v
	}
	if s.Threshold != nil {
		v := *s.Threshold
		out.Threshold = &v
	}
	return out
}
