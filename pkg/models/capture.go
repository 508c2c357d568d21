package models

// CaptureResult is what a capture backend returns. A nil Screenshot means the capture
// failed and Errors explains why.
type CaptureResult struct {
	Screenshot []byte
	LoadTime   int64 // milliseconds
	StatusCode int
	Errors     []string
}

// Succeeded reports whether image bytes were produced.
func (r *CaptureResult) Succeeded() bool {
	return r != nil && len(r.Screenshot) > 0
}
