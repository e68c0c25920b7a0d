package stt

// Alternative is one candidate transcription for a result.
type Alternative struct {
	// Transcript is the recognised text.
	Transcript string

	// Confidence is the confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64
}

// Result is a single recognition result, usually one utterance.
type Result struct {
	// IsFinal reports whether the provider has committed to this result. Interim
	// results may still be replaced by a later event with the same index.
	IsFinal bool

	// Alternatives holds the candidate transcriptions, most likely first.
	Alternatives []Alternative
}

// Transcript returns the first alternative's text, or "" when there is none.
func (r Result) Transcript() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// ResultEvent reports that the result at Index in the session's result list
// changed (or was appended when Index equals the current list length).
type ResultEvent struct {
	Index  int
	Result Result
}
