package suncal

// bands.go - IEEE 521 radar band classification
// Stateless binary-search lookup over sorted band edges; safe for concurrent use.

// Radar band IDs (stored as 'band' in ClickHouse)
const (
	BandUnknown int32 = 0
	BandHF      int32 = 1  // 3-30 MHz
	BandVHF     int32 = 2  // 30-300 MHz
	BandUHF     int32 = 3  // 300 MHz - 1 GHz
	BandL       int32 = 4  // 1-2 GHz
	BandS       int32 = 5  // 2-4 GHz, long-range weather radars
	BandC       int32 = 6  // 4-8 GHz
	BandX       int32 = 7  // 8-12 GHz
	BandKu      int32 = 8  // 12-18 GHz
	BandK       int32 = 9  // 18-27 GHz
	BandKa      int32 = 10 // 27-40 GHz, cloud radars
	BandV       int32 = 11 // 40-75 GHz
	BandW       int32 = 12 // 75-110 GHz, cloud radars
)

// BandInfo is one IEEE radar band.
type BandInfo struct {
	ID         int32
	Name       string
	MinFreqGHz float64 // inclusive lower edge
	MaxFreqGHz float64 // exclusive upper edge
}

// radarBands is sorted by frequency; edges are contiguous.
var radarBands = []BandInfo{
	{ID: BandHF, Name: "HF", MinFreqGHz: 0.003, MaxFreqGHz: 0.030},
	{ID: BandVHF, Name: "VHF", MinFreqGHz: 0.030, MaxFreqGHz: 0.300},
	{ID: BandUHF, Name: "UHF", MinFreqGHz: 0.300, MaxFreqGHz: 1},
	{ID: BandL, Name: "L", MinFreqGHz: 1, MaxFreqGHz: 2},
	{ID: BandS, Name: "S", MinFreqGHz: 2, MaxFreqGHz: 4},
	{ID: BandC, Name: "C", MinFreqGHz: 4, MaxFreqGHz: 8},
	{ID: BandX, Name: "X", MinFreqGHz: 8, MaxFreqGHz: 12},
	{ID: BandKu, Name: "Ku", MinFreqGHz: 12, MaxFreqGHz: 18},
	{ID: BandK, Name: "K", MinFreqGHz: 18, MaxFreqGHz: 27},
	{ID: BandKa, Name: "Ka", MinFreqGHz: 27, MaxFreqGHz: 40},
	{ID: BandV, Name: "V", MinFreqGHz: 40, MaxFreqGHz: 75},
	{ID: BandW, Name: "W", MinFreqGHz: 75, MaxFreqGHz: 110},
}

// GetBand returns the radar band of a transmitter frequency in GHz.
// Frequencies outside 3 MHz - 110 GHz yield BandUnknown, "".
func GetBand(freqGHz float64) (band int32, bandName string) {
	left, right := 0, len(radarBands)-1
	for left <= right {
		mid := (left + right) / 2
		b := &radarBands[mid]

		if freqGHz >= b.MinFreqGHz && freqGHz < b.MaxFreqGHz {
			return b.ID, b.Name
		}
		if freqGHz < b.MinFreqGHz {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return BandUnknown, ""
}

// GetBandByID returns band information by band ID.
func GetBandByID(id int32) (BandInfo, bool) {
	for _, b := range radarBands {
		if b.ID == id {
			return b, true
		}
	}
	return BandInfo{}, false
}
