// Package sink delivers encoded utterances. Sinks are called from the capture
// dispatcher goroutine one utterance at a time, in emission order.
package sink
