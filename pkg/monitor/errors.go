package monitor

import "errors"

// ErrCheckInProgress is returned when a batch is requested while another one runs.
var ErrCheckInProgress = errors.New("check already running")
