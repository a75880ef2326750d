package service

import (
	"fmt"
	"strings"

	"github.com/pft-interp-server/internal/domain"
)

// ClinicalImpression renders the narrative summary for a classified
// record. The wording is fixed, reports and expert comparison match on
// these exact phrases.
func ClinicalImpression(pattern domain.Pattern, severity domain.Severity, reversible bool) string {
	var parts []string

	switch pattern {
	case domain.NORMAL:
		parts = append(parts, "Pulmonary function testing demonstrates normal spirometric values.")

	case domain.OBSTRUCTIVE:
		parts = append(parts, fmt.Sprintf("Spirometry reveals an obstructive ventilatory pattern with %s severity.",
			strings.ToLower(severity.String())))
		if reversible {
			parts = append(parts, "Significant bronchodilator response suggests reversible airway obstruction, consistent with asthma or asthmatic component.")
		} else {
			parts = append(parts, "Limited bronchodilator response suggests fixed airway obstruction, more consistent with COPD.")
		}

	case domain.RESTRICTIVE:
		parts = append(parts, fmt.Sprintf("Spirometry demonstrates a restrictive pattern with %s severity.",
			strings.ToLower(severity.String())))
		parts = append(parts, "Consider full pulmonary function testing with lung volumes to confirm restriction.")

	case domain.MIXED:
		parts = append(parts, fmt.Sprintf("Spirometry shows a mixed ventilatory pattern with %s overall impairment.",
			strings.ToLower(severity.String())))
		parts = append(parts, "Both obstructive and restrictive components are present.")
	}

	return strings.Join(parts, " ")
}

// Recommendations returns the follow-up actions for a classified record.
// Moderate or worse obstruction and any non-mild restriction add a
// pulmonology referral.
func Recommendations(pattern domain.Pattern, severity domain.Severity, reversible bool) []string {
	recommendations := make([]string, 0, 5)

	switch pattern {
	case domain.NORMAL:
		recommendations = append(recommendations,
			"Continue routine health maintenance",
			"Consider repeat testing if symptoms develop")

	case domain.OBSTRUCTIVE:
		if reversible {
			recommendations = append(recommendations,
				"Consider bronchodilator therapy trial",
				"Evaluate for asthma management",
				"Consider allergy testing if appropriate")
		} else {
			recommendations = append(recommendations,
				"Evaluate for COPD management",
				"Consider smoking cessation counseling if applicable",
				"Pneumococcal and influenza vaccination")
		}
		switch severity {
		case domain.MODERATE, domain.MODERATELY_SEVERE, domain.SEVERE:
			recommendations = append(recommendations,
				"Pulmonology referral recommended",
				"Consider arterial blood gas analysis")
		}

	case domain.RESTRICTIVE:
		recommendations = append(recommendations,
			"Complete PFTs with lung volumes and DLCO",
			"Chest imaging if not recently performed",
			"Consider interstitial lung disease evaluation")
		if severity != domain.MILD {
			recommendations = append(recommendations, "Pulmonology referral recommended")
		}

	case domain.MIXED:
		recommendations = append(recommendations,
			"Complete PFTs with lung volumes and DLCO",
			"Pulmonology referral recommended",
			"Consider CT chest for further evaluation")
	}

	return recommendations
}
