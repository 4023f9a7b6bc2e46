package vault

// OutcomeKind discriminates upload results.
type OutcomeKind string

const (
	// OutcomeSuccess reports a newly stored image.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeDuplicate reports content already stored; URL carries the
	// existing object's location.
	OutcomeDuplicate OutcomeKind = "duplicate"
	// OutcomeInvalidFormat reports a rejected filename extension.
	OutcomeInvalidFormat OutcomeKind = "invalid_format"
	// OutcomeProcessingFailed reports a decode failure or an oversize image.
	OutcomeProcessingFailed OutcomeKind = "processing_failed"
	// OutcomeUploadFailed reports a storage-backend failure; nothing was
	// persisted.
	OutcomeUploadFailed OutcomeKind = "upload_failed"
)

// Outcome is the discriminated result of one upload attempt.
type Outcome struct {
	Kind   OutcomeKind `json:"status"`
	URL    string      `json:"url,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Retryable reports whether re-submitting the same file could succeed.
// A rejected extension needs a different file entirely.
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeProcessingFailed || o.Kind == OutcomeUploadFailed
}
