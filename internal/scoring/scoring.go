// Package scoring holds the pure, stateless formulas embedders use to
// display rankings: Sinclair/QPoints/GAMX scores, team points, local
// resource URL probing, and small string-formatting helpers. None of it is
// imported by the hub state machine.
package scoring

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Gender is the closed set this package accepts.
type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

// sinclair2024Coefficients and sinclair2020Coefficients are the IWF
// Sinclair formula (a, b) pairs: coefficient = 10 ^ (a * log10(bodyWeight/b)^2)
// for bodyWeight < b, else 1.
var sinclair2024Coefficients = map[Gender][2]float64{
	Male:   {0.722762521, 193.609},
	Female: {0.787004341, 153.757},
}

var sinclair2020Coefficients = map[Gender][2]float64{
	Male:   {0.751945030, 175.508},
	Female: {0.783497476, 153.655},
}

func sinclair(total, bodyWeight float64, gender Gender, table map[Gender][2]float64) float64 {
	coeffs, ok := table[gender]
	if !ok || total <= 0 || bodyWeight <= 0 {
		return 0
	}
	a, b := coeffs[0], coeffs[1]
	if bodyWeight >= b {
		return total
	}
	x := math.Log10(bodyWeight / b)
	return total * math.Pow(10, a*x*x)
}

// CalculateSinclair2024 returns the 2024-cycle Sinclair-adjusted total.
func CalculateSinclair2024(total, bodyWeight float64, gender Gender) float64 {
	return sinclair(total, bodyWeight, gender, sinclair2024Coefficients)
}

// CalculateSinclair2020 returns the 2020-cycle Sinclair-adjusted total.
func CalculateSinclair2020(total, bodyWeight float64, gender Gender) float64 {
	return sinclair(total, bodyWeight, gender, sinclair2020Coefficients)
}

// mastersAgeFactors is a sparse age->factor table; linear interpolation
// between the two bracketing ages, clamped at the table's ends.
var mastersAgeFactors = map[Gender][][2]float64{
	Male: {
		{30, 1.000}, {40, 1.073}, {50, 1.184}, {60, 1.357}, {70, 1.656}, {80, 2.242}, {90, 3.285},
	},
	Female: {
		{30, 1.000}, {40, 1.064}, {50, 1.150}, {60, 1.297}, {70, 1.579}, {80, 2.108}, {90, 3.000},
	},
}

// GetMastersAgeFactor interpolates the masters age-adjustment factor for age
// and gender. Ages outside the table's range clamp to its nearest entry.
func GetMastersAgeFactor(age float64, gender Gender) float64 {
	table, ok := mastersAgeFactors[gender]
	if !ok || len(table) == 0 {
		return 1
	}
	if age <= table[0][0] {
		return table[0][1]
	}
	if age >= table[len(table)-1][0] {
		return table[len(table)-1][1]
	}
	for i := 1; i < len(table); i++ {
		lo, hi := table[i-1], table[i]
		if age <= hi[0] {
			frac := (age - lo[0]) / (hi[0] - lo[0])
			return lo[1] + frac*(hi[1]-lo[1])
		}
	}
	return 1
}

// qPointsCoefficients mirrors the Sinclair shape: QPoints is a bodyweight-
// and age-adjusted total, computed relative to a reference coefficient table
// plus the masters age factor when age is supplied.
var qPointsCoefficients = map[Gender][2]float64{
	Male:   {0.117, 1.3925},
	Female: {0.113, 1.3925},
}

// CalculateQPoints returns the age/bodyweight-normalized QPoints score.
// age == nil means no masters adjustment is applied.
func CalculateQPoints(total, bodyWeight float64, gender Gender, age *float64) float64 {
	coeffs, ok := qPointsCoefficients[gender]
	if !ok || total <= 0 || bodyWeight <= 0 {
		return 0
	}
	base := total * coeffs[1] / math.Pow(bodyWeight, coeffs[0])
	if age != nil {
		base *= GetMastersAgeFactor(*age, gender)
	}
	return base
}

// CalculateTeamPoints awards ranked team points to a successful lift by a
// team member; tp1/tp2/tp3 are the podium point values, decaying by 1 point
// per rank below third down to zero.
func CalculateTeamPoints(rank int, liftValue float64, isTeamMember bool, tp1, tp2, tp3 int) int {
	if !isTeamMember || liftValue <= 0 {
		return 0
	}
	switch rank {
	case 1:
		return tp1
	case 2:
		return tp2
	case 3:
		return tp3
	default:
		points := tp3 - (rank - 3)
		if points < 0 {
			return 0
		}
		return points
	}
}

var probeExtensions = []string{"svg", "png", "jpg", "jpeg", "gif", "webp"}

// probeResource finds the first file matching name (tried as-is, then
// uppercased) across probeExtensions inside <localFilesDir>/<subdir>/, and
// returns the corresponding URL under urlPrefix, or "" if none exist.
func probeResource(localFilesDir, urlPrefix, subdir, name string) string {
	if name == "" {
		return ""
	}
	candidates := []string{name, strings.ToUpper(name)}
	for _, candidate := range candidates {
		for _, ext := range probeExtensions {
			fileName := candidate + "." + ext
			path := filepath.Join(localFilesDir, subdir, fileName)
			if _, err := os.Stat(path); err == nil {
				return urlPrefix + "/" + subdir + "/" + fileName
			}
		}
	}
	return ""
}

// GetFlagUrl probes flags/<teamName>.<ext>.
func GetFlagUrl(localFilesDir, urlPrefix, teamName string) string {
	return probeResource(localFilesDir, urlPrefix, "flags", teamName)
}

// GetLogoUrl probes logos/<teamName>.<ext>.
func GetLogoUrl(localFilesDir, urlPrefix, teamName string) string {
	return probeResource(localFilesDir, urlPrefix, "logos", teamName)
}

// GetPictureUrl probes pictures/<athleteId>.<ext>.
func GetPictureUrl(localFilesDir, urlPrefix, athleteID string) string {
	return probeResource(localFilesDir, urlPrefix, "pictures", athleteID)
}

// GetHeaderLogoUrl tries each of baseNames in order against styles/, returning
// the first match.
func GetHeaderLogoUrl(localFilesDir, urlPrefix string, baseNames []string) string {
	for _, name := range baseNames {
		if url := probeResource(localFilesDir, urlPrefix, "styles", name); url != "" {
			return url
		}
	}
	return ""
}

// FormatMessage supports "{i}" positional substitution and
// "{i,choice,v1#s1|v2#s2|...}" selection, where the argument at index i picks
// the matching "vN#sN" branch (falling back to the last branch).
func FormatMessage(pattern string, args ...interface{}) string {
	var out strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] != '{' {
			out.WriteByte(pattern[i])
			i++
			continue
		}
		end := strings.IndexByte(pattern[i:], '}')
		if end == -1 {
			out.WriteString(pattern[i:])
			break
		}
		token := pattern[i+1 : i+end]
		out.WriteString(resolveToken(token, args))
		i += end + 1
	}
	return out.String()
}

func resolveToken(token string, args []interface{}) string {
	parts := strings.SplitN(token, ",", 3)
	idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || idx < 0 || idx >= len(args) {
		return "{" + token + "}"
	}
	if len(parts) == 1 {
		return fmt.Sprintf("%v", args[idx])
	}
	if len(parts) == 3 && strings.TrimSpace(parts[1]) == "choice" {
		value := fmt.Sprintf("%v", args[idx])
		branches := strings.Split(parts[2], "|")
		var last string
		for _, branch := range branches {
			pieces := strings.SplitN(branch, "#", 2)
			if len(pieces) != 2 {
				continue
			}
			last = pieces[1]
			if strings.TrimSpace(pieces[0]) == value {
				return pieces[1]
			}
		}
		return last
	}
	return fmt.Sprintf("%v", args[idx])
}

// ParseFormattedNumber tolerates comma-decimal input; "" and "-" parse as 0.
func ParseFormattedNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatCategoryDisplay replaces a leading ">" with "+" (the "105+" style
// open-ended category convention).
func FormatCategoryDisplay(s string) string {
	if strings.HasPrefix(s, ">") {
		return "+" + s[1:]
	}
	return s
}
