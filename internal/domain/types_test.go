package domain

import (
	"testing"
)

func TestPatternConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    Pattern
		expected string
	}{
		{"Normal", NORMAL, "Normal"},
		{"Obstructive", OBSTRUCTIVE, "Obstructive"},
		{"Restrictive", RESTRICTIVE, "Restrictive"},
		{"Mixed", MIXED, "Mixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
		})
	}
}

func TestSeverityConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    Severity
		expected string
	}{
		{"Normal", NORMAL_SEVERITY, "Normal"},
		{"Mild", MILD, "Mild"},
		{"Moderate", MODERATE, "Moderate"},
		{"Moderately Severe", MODERATELY_SEVERE, "Moderately Severe"},
		{"Severe", SEVERE, "Severe"},
		{"Very Severe", VERY_SEVERE, "Very Severe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
		})
	}
}

func TestSexIsValid(t *testing.T) {
	tests := []struct {
		name  string
		value Sex
		want  bool
	}{
		{"Male", MALE, true},
		{"Female", FEMALE, true},
		{"Lowercase m", Sex("m"), false},
		{"Empty", Sex(""), false},
		{"Unknown", Sex("X"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsValid(); got != tt.want {
				t.Errorf("Sex(%q).IsValid() = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestPatternIsValid(t *testing.T) {
	tests := []struct {
		name  string
		value Pattern
		want  bool
	}{
		{"Normal", NORMAL, true},
		{"Obstructive", OBSTRUCTIVE, true},
		{"Restrictive", RESTRICTIVE, true},
		{"Mixed", MIXED, true},
		{"Empty", Pattern(""), false},
		{"Lowercase", Pattern("obstructive"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsValid(); got != tt.want {
				t.Errorf("Pattern(%q).IsValid() = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestPatternRequiresFollowUp(t *testing.T) {
	tests := []struct {
		name  string
		value Pattern
		want  bool
	}{
		{"Normal", NORMAL, false},
		{"Obstructive", OBSTRUCTIVE, true},
		{"Restrictive", RESTRICTIVE, true},
		{"Mixed", MIXED, true},
		{"Unknown defaults to follow-up", Pattern("???"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.RequiresFollowUp(); got != tt.want {
				t.Errorf("Pattern(%q).RequiresFollowUp() = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	ordered := []Severity{NORMAL_SEVERITY, MILD, MODERATE, MODERATELY_SEVERE, SEVERE, VERY_SEVERE}

	for i := 1; i < len(ordered); i++ {
		if !ordered[i].WorseThan(ordered[i-1]) {
			t.Errorf("Expected %s to rank worse than %s", ordered[i], ordered[i-1])
		}
	}

	if Severity("bogus").Rank() != -1 {
		t.Errorf("Expected invalid severity to rank -1, got %d", Severity("bogus").Rank())
	}
}

func TestReversibilityGradeIsValid(t *testing.T) {
	tests := []struct {
		name  string
		value ReversibilityGrade
		want  bool
	}{
		{"None", NO_RESPONSE, true},
		{"Borderline", BORDERLINE, true},
		{"Significant", SIGNIFICANT, true},
		{"Empty", ReversibilityGrade(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsValid(); got != tt.want {
				t.Errorf("ReversibilityGrade(%q).IsValid() = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestBMICategory(t *testing.T) {
	tests := []struct {
		name     string
		demo     Demographics
		expected BMICategory
	}{
		{"Underweight", Demographics{HeightCM: 180, WeightKG: 55}, UNDERWEIGHT},
		{"Normal weight", Demographics{HeightCM: 175, WeightKG: 70}, NORMAL_WEIGHT},
		{"Overweight", Demographics{HeightCM: 175, WeightKG: 85}, OVERWEIGHT},
		{"Obese", Demographics{HeightCM: 165, WeightKG: 95}, OBESE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.demo.BMICategory(); got != tt.expected {
				t.Errorf("Expected %s, got %s (BMI %.1f)", tt.expected, got, tt.demo.BMI())
			}
		})
	}
}
