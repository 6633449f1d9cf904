package analytics

// ThresholdSigmas is how many sample standard deviations above the mean an
// amount must lie to be flagged.
const ThresholdSigmas = 2

// Anomalies is the outcome of outlier detection over an amount sequence.
type Anomalies struct {
	Mean      float64
	StdDev    float64
	Threshold float64
	Flags     []bool // one per amount, true when amount > Threshold
	Count     int
}

// DetectAnomalies flags amounts strictly above mean + 2·sample std dev.
// An empty sequence yields a zero count and no flags.
func DetectAnomalies(amounts []float64) Anomalies {
	if len(amounts) == 0 {
		return Anomalies{Flags: []bool{}}
	}
	a := Anomalies{
		Mean:   Mean(amounts),
		StdDev: SampleStdDev(amounts),
		Flags:  make([]bool, len(amounts)),
	}
	a.Threshold = a.Mean + ThresholdSigmas*a.StdDev
	for i, v := range amounts {
		if v > a.Threshold {
			a.Flags[i] = true
			a.Count++
		}
	}
	return a
}
