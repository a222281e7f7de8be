package models

import "strconv"

var bandEdges = []struct {
	maxChannel int
	band       string
}{
	{14, "2G"},
	{177, "5G"},
}

// ChannelBand returns the band label for an 802.11 channel number.
func ChannelBand(channel int) string {
	for _, e := range bandEdges {
		if channel <= e.maxChannel {
			return e.band
		}
	}
	return "6G"
}

// FrequencyBand returns the band label for a centre frequency in MHz.
func FrequencyBand(freq int) string {
	switch {
	case freq < 3000:
		return "2G"
	case freq < 5925:
		return "5G"
	default:
		return "6G"
	}
}

// Band returns the band label for a channel, preferring the frequency
// when it is known. 6 GHz channel numbers overlap the lower bands.
func Band(channel, freq int) string {
	if freq > 0 {
		return FrequencyBand(freq)
	}
	return ChannelBand(channel)
}

// FrequencyToChannel converts a centre frequency to its channel number.
// Unknown frequencies map to 0.
func FrequencyToChannel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq < 2484:
		return (freq - 2407) / 5
	case freq >= 5180 && freq <= 5885:
		return (freq - 5000) / 5
	case freq == 5935:
		return 2
	case freq >= 5955 && freq <= 7115:
		return (freq - 5950) / 5
	default:
		return 0
	}
}

// ChannelLabel formats a channel as "6(2G)", or "*" while hopping.
func ChannelLabel(channel int) string {
	if channel == 0 {
		return "*"
	}
	return strconv.Itoa(channel) + "(" + ChannelBand(channel) + ")"
}

// FrequencyLabel is ChannelLabel with the band taken from freq when known.
func FrequencyLabel(channel, freq int) string {
	if channel == 0 {
		return "*"
	}
	return strconv.Itoa(channel) + "(" + Band(channel, freq) + ")"
}
