// Package capture runs recording sessions. A Controller opens a PCM source,
// drives the segmenter from a single worker goroutine, encodes each finished
// utterance and hands it to a dispatcher goroutine that calls the sink.
//
// Sources deliver signed 16-bit mono blocks from UDP datagrams, raw PCM
// readers, or (with the portaudio build tag) the default input device.
package capture
