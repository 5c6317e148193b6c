// Package daqcore is the readout and streaming-assembly core of a
// data-acquisition application for VME waveform digitizers. It arms and
// starts a fleet of digitizer boards, drains their FIFOs continuously into
// a shared raw buffer, and formats the raw words into per-channel waveform
// fragments that are chunked, compressed, and published atomically to a
// shared filesystem in strax's chunked layout.
package daqcore
