// Package audio handles PCM block accumulation, utterance segmentation, and
// WAV encoding. It implements the silence-timed segmentation loop that splits a
// continuous capture into utterances and the canonical 44-byte RIFF/WAVE
// container those utterances are persisted in.
package audio
