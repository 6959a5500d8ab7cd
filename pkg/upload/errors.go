package upload

// RejectionError is a client-caused validation failure. Its reason is safe to
// surface verbatim in the 400 response body; the request leaves no partial
// record behind.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }
