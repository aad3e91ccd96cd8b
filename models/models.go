package models

import "time"

// Classification is the welfare tier derived from a household's other fields
type Classification string

const (
	Miskin   Classification = "Miskin"   // poor
	Menengah Classification = "Menengah" // middle
	Kaya     Classification = "Kaya"     // rich
)

// Classifications lists the tiers from poorest to richest
var Classifications = []Classification{Miskin, Menengah, Kaya}

// Valid reports whether c is one of the known tiers
func (c Classification) Valid() bool {
	for _, known := range Classifications {
		if c == known {
			return true
		}
	}
	return false
}

// Role of a dashboard user
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Education levels, lowest first
var EducationLevels = []string{
	"Tidak Sekolah",
	"SD",
	"SMP",
	"SMA/SMK",
	"Diploma",
	"S1 ke atas",
}

// Occupations, lowest earning first
var Occupations = []string{
	"Pengangguran",
	"Buruh / Tani / Pekerja kasar",
	"Wiraswasta kecil",
	"Pegawai swasta",
	"PNS / Profesional",
}

// Defaults applied to spreadsheet rows that leave a column empty
const (
	DefaultEducation  = "SMA/SMK"
	DefaultOccupation = "Wiraswasta kecil"
)

// Household represents one person record in the welfare dataset
type Household struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Address        string         `json:"address"`
	Education      string         `json:"education"`
	NumChildren    int            `json:"num_children"`
	MonthlyIncome  float64        `json:"monthly_income"`
	Occupation     string         `json:"occupation"`
	Classification Classification `json:"classification"`
	ImagePath      string         `json:"image_path"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HouseholdInput is the writable part of a Household. Classification is
// never accepted from callers.
type HouseholdInput struct {
	Name          string  `json:"name" validate:"required,max=255"`
	Address       string  `json:"address" validate:"max=2000"`
	Education     string  `json:"education" validate:"required,education"`
	NumChildren   int     `json:"num_children" validate:"min=0,max=50"`
	MonthlyIncome float64 `json:"monthly_income" validate:"min=0"`
	Occupation    string  `json:"occupation" validate:"required,occupation"`
}

// Input returns the writable fields of h
func (h Household) Input() HouseholdInput {
	return HouseholdInput{
		Name:          h.Name,
		Address:       h.Address,
		Education:     h.Education,
		NumChildren:   h.NumChildren,
		MonthlyIncome: h.MonthlyIncome,
		Occupation:    h.Occupation,
	}
}

// Filter narrows household listings
type Filter struct {
	Search         string         // case-insensitive substring of the name
	Classification Classification // empty means any tier
}

// Summary holds the dashboard counters
type Summary struct {
	Total    int `json:"total"`
	Miskin   int `json:"miskin"`
	Menengah int `json:"menengah"`
	Kaya     int `json:"kaya"`
}

// Add counts one household of tier c
func (s *Summary) Add(c Classification) {
	s.Total++
	switch c {
	case Miskin:
		s.Miskin++
	case Menengah:
		s.Menengah++
	case Kaya:
		s.Kaya++
	}
}

// User is a dashboard account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the authenticated state behind a login token
type Session struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
