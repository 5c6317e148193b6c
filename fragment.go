package daqcore

import "encoding/binary"

// FragmentHeaderSize is the fixed 24-byte header preceding every
// fragment's zero-padded waveform payload.
const FragmentHeaderSize = 24

// Fragment is one fixed-size binary record: header plus zero-padded
// waveform samples, encoded little-endian field by field (see
// DESIGN.md for why this uses encoding/binary rather than an
// unsafe-pointer cast).
type Fragment struct {
	Timestamp      int64  // ns
	SamplesThisFrag int32
	SampleWidthNS  uint16
	GlobalChannel  int16
	TotalSamples   uint32
	FragmentIndex  uint16
	Baseline       uint16
	Waveform       []uint16 // length == payload/2, zero-padded
}

// Encode writes the fragment's 24-byte header plus its (already
// zero-padded) waveform into a buffer of exactly FragmentHeaderSize +
// payloadBytes bytes.
func (f Fragment) Encode(payloadBytes int) []byte {
	out := make([]byte, FragmentHeaderSize+payloadBytes)
	binary.LittleEndian.PutUint64(out[0:8], uint64(f.Timestamp))
	binary.LittleEndian.PutUint32(out[8:12], uint32(f.SamplesThisFrag))
	binary.LittleEndian.PutUint16(out[12:14], f.SampleWidthNS)
	binary.LittleEndian.PutUint16(out[14:16], uint16(f.GlobalChannel))
	binary.LittleEndian.PutUint32(out[16:20], f.TotalSamples)
	binary.LittleEndian.PutUint16(out[20:22], f.FragmentIndex)
	binary.LittleEndian.PutUint16(out[22:24], f.Baseline)
	for i, s := range f.Waveform {
		off := FragmentHeaderSize + i*2
		if off+2 > len(out) {
			break
		}
		binary.LittleEndian.PutUint16(out[off:off+2], s)
	}
	return out
}

// DecodeFragment parses a previously Encode'd record.
func DecodeFragment(buf []byte) (Fragment, error) {
	if len(buf) < FragmentHeaderSize {
		return Fragment{}, errf(KindInternal, "fragment buffer too short: %d bytes", len(buf))
	}
	f := Fragment{
		Timestamp:       int64(binary.LittleEndian.Uint64(buf[0:8])),
		SamplesThisFrag: int32(binary.LittleEndian.Uint32(buf[8:12])),
		SampleWidthNS:   binary.LittleEndian.Uint16(buf[12:14]),
		GlobalChannel:   int16(binary.LittleEndian.Uint16(buf[14:16])),
		TotalSamples:    binary.LittleEndian.Uint32(buf[16:20]),
		FragmentIndex:   binary.LittleEndian.Uint16(buf[20:22]),
		Baseline:        binary.LittleEndian.Uint16(buf[22:24]),
	}
	payload := buf[FragmentHeaderSize:]
	f.Waveform = make([]uint16, len(payload)/2)
	for i := range f.Waveform {
		f.Waveform[i] = binary.LittleEndian.Uint16(payload[i*2 : i*2+2])
	}
	return f, nil
}

// splitIntoFragments splits a full waveform into fixed-size fragments of
// samplesPerFrag samples each, zero-padding the last one. Baseline and
// channel metadata are applied uniformly to every resulting fragment.
func splitIntoFragments(waveform []uint16, samplesPerFrag int, ts int64, sampleWidthNS uint16, globalChan int16, baseline uint16) []Fragment {
	total := len(waveform)
	if total == 0 {
		return nil
	}
	numFrags := (total + samplesPerFrag - 1) / samplesPerFrag
	frags := make([]Fragment, numFrags)
	for i := 0; i < numFrags; i++ {
		start := i * samplesPerFrag
		end := start + samplesPerFrag
		if end > total {
			end = total
		}
		chunk := waveform[start:end]
		padded := make([]uint16, samplesPerFrag)
		copy(padded, chunk)
		frags[i] = Fragment{
			Timestamp:       ts,
			SamplesThisFrag: int32(len(chunk)),
			SampleWidthNS:   sampleWidthNS,
			GlobalChannel:   globalChan,
			TotalSamples:    uint32(total),
			FragmentIndex:   uint16(i),
			Baseline:        baseline,
			Waveform:        padded,
		}
	}
	return frags
}
