// Package vad provides amplitude-threshold voice activity detection.
// A block is speech when any sample's magnitude exceeds the threshold and
// silence otherwise; the Classifier wrapper adds runtime-adjustable thresholds
// and detection statistics.
package vad
