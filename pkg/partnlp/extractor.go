// Package partnlp extracts structured HVAC attributes (voltage, horsepower,
// tonnage, capacitance, brand) from free-text part descriptions using regex
// patterns and a brand alias table. No external dependencies.
package partnlp

import (
	"regexp"
	"strings"
)

// brandAliases maps lowercase brand mentions to canonical brand names.
var brandAliases = map[string]string{
	"carrier":    "Carrier",
	"bryant":     "Bryant",
	"payne":      "Payne",
	"trane":      "Trane",
	"american standard": "American Standard",
	"lennox":     "Lennox",
	"goodman":    "Goodman",
	"amana":      "Amana",
	"rheem":      "Rheem",
	"ruud":       "Ruud",
	"york":       "York",
	"daikin":     "Daikin",
	"mitsubishi": "Mitsubishi",
	"honeywell":  "Honeywell",
	"emerson":    "Emerson",
	"copeland":   "Copeland",
	"fasco":      "Fasco",
	"aprilaire":  "Aprilaire",
	"white-rodgers": "White-Rodgers",
	"white rodgers": "White-Rodgers",
}

var (
	voltagePattern  = regexp.MustCompile(`(?i)\b(\d{2,3})\s?(?:v|vac|volts?)\b`)
	hpPattern       = regexp.MustCompile(`(?i)\b(\d+(?:/\d+)?)\s?hp\b`)
	tonnagePattern  = regexp.MustCompile(`(?i)\b(\d(?:\.5)?)\s?tons?\b`)
	mfdPattern      = regexp.MustCompile(`(?i)\b(\d+(?:/\d+(?:\.5)?)?(?:\.5)?)\s?(?:mfd|uf|µf)\b`)
	rpmPattern      = regexp.MustCompile(`(?i)\b(\d{3,4})\s?rpm\b`)
	phasePattern    = regexp.MustCompile(`(?i)\b(single|1|3|three)[\s-]?phase\b`)
)

// categoryKeywords maps description keywords to catalog categories.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"blower motor", "blower_motor"},
	{"condenser fan", "condenser_fan_motor"},
	{"fan motor", "condenser_fan_motor"},
	{"inducer", "draft_inducer"},
	{"capacitor", "capacitor"},
	{"contactor", "contactor"},
	{"compressor", "compressor"},
	{"igniter", "igniter"},
	{"ignitor", "igniter"},
	{"thermostat", "thermostat"},
	{"control board", "control_board"},
	{"circuit board", "control_board"},
	{"defrost board", "control_board"},
	{"txv", "expansion_valve"},
	{"expansion valve", "expansion_valve"},
	{"gas valve", "gas_valve"},
	{"pressure switch", "pressure_switch"},
	{"limit switch", "limit_switch"},
	{"flame sensor", "flame_sensor"},
	{"heat exchanger", "heat_exchanger"},
	{"filter", "filter"},
	{"fan blade", "fan_blade"},
	{"transformer", "transformer"},
}

// Extract pulls structured attributes out of a free-text part description.
// Keys: voltage, hp, tonnage, mfd, rpm, phase, brand. Absent attributes are
// omitted.
func Extract(text string) map[string]string {
	attrs := make(map[string]string)
	lower := strings.ToLower(text)

	if m := voltagePattern.FindStringSubmatch(text); m != nil {
		attrs["voltage"] = m[1]
	}
	if m := hpPattern.FindStringSubmatch(text); m != nil {
		attrs["hp"] = m[1]
	}
	if m := tonnagePattern.FindStringSubmatch(text); m != nil {
		attrs["tonnage"] = m[1]
	}
	if m := mfdPattern.FindStringSubmatch(text); m != nil {
		attrs["mfd"] = m[1]
	}
	if m := rpmPattern.FindStringSubmatch(text); m != nil {
		attrs["rpm"] = m[1]
	}
	if m := phasePattern.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "3", "three":
			attrs["phase"] = "3"
		default:
			attrs["phase"] = "1"
		}
	}
	if brand := extractBrand(lower); brand != "" {
		attrs["brand"] = brand
	}

	return attrs
}

// GuessCategory returns the catalog category implied by the description,
// or "other" when nothing matches. Longer keywords win over shorter ones,
// so "blower motor" is preferred to a bare "motor" mention.
func GuessCategory(text string) string {
	lower := strings.ToLower(text)
	best := ""
	bestLen := 0
	for _, ck := range categoryKeywords {
		if strings.Contains(lower, ck.keyword) && len(ck.keyword) > bestLen {
			best = ck.category
			bestLen = len(ck.keyword)
		}
	}
	if best == "" {
		if strings.Contains(lower, "motor") {
			return "blower_motor"
		}
		return "other"
	}
	return best
}

func extractBrand(lower string) string {
	// Multi-word aliases first so "american standard" beats nothing.
	for alias, canonical := range brandAliases {
		if strings.Contains(alias, " ") && strings.Contains(lower, alias) {
			return canonical
		}
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '(' || r == ')'
	}) {
		if canonical, ok := brandAliases[word]; ok {
			return canonical
		}
	}
	return ""
}
