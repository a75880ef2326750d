package gli

// Intake bounds for spirometry submissions. Records outside these ranges
// are rejected before interpretation, the regression tables were not fit
// beyond them.
const (
	MinAge = 3
	MaxAge = 100

	MinHeightCM = 100.0
	MaxHeightCM = 220.0

	MinVolumeLiters = 0.3
	MaxFEV1Liters   = 8.0
	MaxFVCLiters    = 10.0
)

// Suspicion bounds used by quality assessment. Values beyond these are
// flagged for manual review rather than rejected.
const (
	SuspectLowVolumeLiters = 0.5
	SuspectHighFEV1Liters  = 6.0
	SuspectHighFVCLiters   = 8.0
)

// AgeInRange reports whether an age in years is within the accepted
// intake range.
func AgeInRange(age int) bool {
	return age >= MinAge && age <= MaxAge
}

// HeightInRange reports whether a height in centimeters is within the
// accepted intake range.
func HeightInRange(heightCM float64) bool {
	return heightCM >= MinHeightCM && heightCM <= MaxHeightCM
}

// VolumeInRange reports whether a measured volume in liters is plausible
// for the given parameter. The lower bound is exclusive.
func VolumeInRange(param Param, liters float64) bool {
	upper := MaxFEV1Liters
	if param == FVC {
		upper = MaxFVCLiters
	}
	return liters > MinVolumeLiters && liters <= upper
}
