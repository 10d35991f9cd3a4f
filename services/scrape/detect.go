package scrape

import "strings"

// formatByClassID maps internationalClassId to a format directory name.
var formatByClassID = map[int64]string{
	1: "test",
	2: "odi",
	3: "t20i",
}

// formatByLabel maps the match.format label, covering the domestic
// variants that share a format with their international equivalent.
var formatByLabel = map[string]string{
	"TEST": "test",
	"ODI":  "odi",
	"T20I": "t20i",
	"T20":  "t20i",
	"MDM":  "test",
	"ODM":  "odi",
	"IT20": "t20i",
}

// DetectFormat classifies a match as t20i/odi/test, preferring the
// numeric class id over the format label. Returns "" when neither
// matches.
func DetectFormat(classID *int64, formatLabel *string) string {
	if classID != nil {
		if f, ok := formatByClassID[*classID]; ok {
			return f
		}
	}
	if formatLabel != nil {
		if f, ok := formatByLabel[strings.ToUpper(*formatLabel)]; ok {
			return f
		}
	}
	return ""
}

// DetectGender classifies a match as male/female. The explicit gender
// field wins; otherwise women's matches are recognized by the -W team
// abbreviation convention or a "women" slug. Returns "" when
// undeterminable, callers pick their own fallback.
func DetectGender(gender *string, teamAbbrevs []string, slug *string) string {
	if gender != nil && *gender != "" {
		switch g := strings.ToLower(*gender); g {
		case "male", "female":
			return g
		default:
			// an explicit but unrecognized gender is not overridden by
			// weaker heuristics
			return ""
		}
	}
	if len(teamAbbrevs) > 0 {
		allWomen := true
		for _, abbrev := range teamAbbrevs {
			if abbrev != "" && !strings.HasSuffix(abbrev, "-W") {
				allWomen = false
				break
			}
		}
		if allWomen {
			return "female"
		}
	}
	if slug != nil && strings.Contains(strings.ToLower(*slug), "women") {
		return "female"
	}
	return ""
}

// MaxInnings is the expected innings count for a format, used when the
// innings dropdown cannot be read.
func MaxInnings(format string) int {
	if format == "test" {
		return 4
	}
	return 2
}
