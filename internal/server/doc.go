// Package server implements the HTTP control surface of the recorder:
// start and stop of recording, status, recent utterances, the sanitized
// configuration and Prometheus metrics.
package server
