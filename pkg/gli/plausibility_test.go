package gli

import "testing"

func TestAgeInRange(t *testing.T) {
	tests := []struct {
		name string
		age  int
		want bool
	}{
		{"Lower bound", 3, true},
		{"Below lower bound", 2, false},
		{"Upper bound", 100, true},
		{"Above upper bound", 101, false},
		{"Typical adult", 65, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeInRange(tt.age); got != tt.want {
				t.Errorf("AgeInRange(%d) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestHeightInRange(t *testing.T) {
	tests := []struct {
		name     string
		heightCM float64
		want     bool
	}{
		{"Lower bound", 100, true},
		{"Below lower bound", 99.9, false},
		{"Upper bound", 220, true},
		{"Above upper bound", 220.1, false},
		{"Typical adult", 175, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HeightInRange(tt.heightCM); got != tt.want {
				t.Errorf("HeightInRange(%v) = %v, want %v", tt.heightCM, got, tt.want)
			}
		})
	}
}

func TestVolumeInRange(t *testing.T) {
	tests := []struct {
		name   string
		param  Param
		liters float64
		want   bool
	}{
		{"FEV1 lower bound excluded", FEV1, 0.3, false},
		{"FEV1 just above lower bound", FEV1, 0.31, true},
		{"FEV1 upper bound", FEV1, 8.0, true},
		{"FEV1 above upper bound", FEV1, 8.01, false},
		{"FVC lower bound excluded", FVC, 0.3, false},
		{"FVC upper bound", FVC, 10.0, true},
		{"FVC above upper bound", FVC, 10.01, false},
		{"FVC typical", FVC, 4.2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VolumeInRange(tt.param, tt.liters); got != tt.want {
				t.Errorf("VolumeInRange(%s, %v) = %v, want %v", tt.param, tt.liters, got, tt.want)
			}
		})
	}
}
