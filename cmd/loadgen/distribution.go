package main

import "math"

// distribution selects how the total event count is spread across
// streams.
type distribution string

const (
	distributionUniform distribution = "uniform"
	distributionLinear  distribution = "linear"
)

// distribute splits eventCount across streamCount streams according to
// d. uniform gives every stream the same (rounded) share; linear ramps
// each stream's share up linearly, dropping any stream that rounds to
// zero events.
func (d distribution) distribute(eventCount, streamCount uint32) []uint32 {
	eventCountF := float64(eventCount)
	streamCountF := float64(streamCount)

	switch d {
	case distributionLinear:
		max := 2.0 * eventCountF / (1.0 + streamCountF)
		inc := max / streamCountF

		var result []uint32
		for i := uint32(1); i <= streamCount; i++ {
			streamEvents := uint32(math.Round(float64(i) * inc))
			if streamEvents != 0 {
				result = append(result, streamEvents)
			}
		}
		return result
	default:
		perStream := uint32(math.Round(eventCountF / streamCountF))
		result := make([]uint32, streamCount)
		for i := range result {
			result[i] = perStream
		}
		return result
	}
}
