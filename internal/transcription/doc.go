// Package transcription implements the HTTP client for the transcription API.
// Each utterance is posted as a multipart form with the WAV file and its
// metadata; retryable failures back off exponentially.
package transcription
