// Package classify computes the welfare tier of a household.
//
// The rule is a weighted score over income, education, number of children
// and occupation. It depends on nothing but its inputs, so the stored
// classification can always be recomputed from a record.
package classify

import "welfare-server-go/models"

// Tier boundaries on the total score
const (
	MenengahFrom = 50
	KayaFrom     = 110
)

// Income bands, in Rupiah per month
const (
	incomeBandLow  = 2_000_000
	incomeBandMid  = 4_000_000
	incomeBandHigh = 7_000_000
)

var educationPoints = map[string]int{
	"Tidak Sekolah": 0,
	"SD":            10,
	"SMP":           20,
	"SMA/SMK":       30,
	"Diploma":       40,
	"S1 ke atas":    50,
}

var occupationPoints = map[string]int{
	"Pengangguran":                 0,
	"Buruh / Tani / Pekerja kasar": 10,
	"Wiraswasta kecil":             20,
	"Pegawai swasta":               30,
	"PNS / Profesional":            40,
}

// Points given to values outside the known lists
const (
	unknownEducationPoints  = 20
	unknownOccupationPoints = 10
)

// Breakdown is the score split by factor
type Breakdown struct {
	Income     int `json:"income"`
	Education  int `json:"education"`
	Children   int `json:"children"`
	Occupation int `json:"occupation"`
	Total      int `json:"total"`
}

// Result of classifying one input
type Result struct {
	Score          Breakdown             `json:"score"`
	Classification models.Classification `json:"classification"`
}

// Score computes the per-factor score of in
func Score(in models.HouseholdInput) Breakdown {
	b := Breakdown{
		Income:     incomePoints(in.MonthlyIncome),
		Education:  lookup(educationPoints, in.Education, unknownEducationPoints),
		Children:   childrenPoints(in.NumChildren),
		Occupation: lookup(occupationPoints, in.Occupation, unknownOccupationPoints),
	}
	b.Total = b.Income + b.Education + b.Children + b.Occupation
	return b
}

// Tier maps a total score to its classification
func Tier(total int) models.Classification {
	switch {
	case total < MenengahFrom:
		return models.Miskin
	case total < KayaFrom:
		return models.Menengah
	default:
		return models.Kaya
	}
}

// Classify returns the classification of in
func Classify(in models.HouseholdInput) models.Classification {
	return Tier(Score(in).Total)
}

// Explain returns the score breakdown together with the tier
func Explain(in models.HouseholdInput) Result {
	b := Score(in)
	return Result{Score: b, Classification: Tier(b.Total)}
}

func incomePoints(income float64) int {
	switch {
	case income < incomeBandLow:
		return 0
	case income < incomeBandMid:
		return 30
	case income < incomeBandHigh:
		return 60
	default:
		return 100
	}
}

func childrenPoints(n int) int {
	switch {
	case n < 2:
		return 10
	case n < 4:
		return -10
	default:
		return -20
	}
}

func lookup(points map[string]int, key string, fallback int) int {
	if p, ok := points[key]; ok {
		return p
	}
	return fallback
}
