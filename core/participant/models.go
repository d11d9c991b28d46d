package participant

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/syaifulazham/techlympics/core"
)

// Contingent types
const (
	ContingentSchool            = "SCHOOL"
	ContingentHigherInstitution = "HIGHER_INSTITUTION"
	ContingentIndependent       = "INDEPENDENT"
)

// Team registration statuses of an event contest
const (
	StatusPending         = "PENDING"
	StatusApproved        = "APPROVED"
	StatusAccepted        = "ACCEPTED"
	StatusApprovedSpecial = "APPROVED_SPECIAL"
	StatusRejected        = "REJECTED"
	StatusWithdrawn       = "WITHDRAWN"
)

// EndlistStatuses are the registration statuses that put a team on the endlist.
var EndlistStatuses = []string{StatusApproved, StatusAccepted, StatusApprovedSpecial}

const (
	defaultMinAge = 0
	defaultMaxAge = 100
)

// Institution is a school, higher institution or independent group a contingent belongs to.
type Institution struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	PPD       string `json:"ppd,omitempty"`
	StateID   *int   `json:"stateId"`
	StateName string `json:"stateName"`
	ZoneID    *int   `json:"zoneId"`
}

type Contingent struct {
	ID                int          `json:"id"`
	Name              string       `json:"name"`
	ContingentType    string       `json:"contingentType"`
	LogoURL           string       `json:"logoUrl"`
	School            *Institution `json:"school,omitempty"`
	HigherInstitution *Institution `json:"higherInstitution,omitempty"`
	Independent       *Institution `json:"independent,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Institution returns the institution matching the contingent type.
func (c Contingent) Institution() *Institution {
	switch c.ContingentType {
	case ContingentSchool:
		return c.School
	case ContingentHigherInstitution:
		return c.HigherInstitution
	case ContingentIndependent:
		return c.Independent
	}
	return nil
}

// DisplayName is the name of the contingent's institution.
func (c Contingent) DisplayName() string {
	if inst := c.Institution(); inst != nil && inst.Name != "" {
		return inst.Name
	}
	return "Unknown"
}

func (c Contingent) StateName() string {
	if inst := c.Institution(); inst != nil && inst.StateName != "" {
		return inst.StateName
	}
	return "Unknown State"
}

func (c Contingent) StateID() *int {
	if inst := c.Institution(); inst != nil {
		return inst.StateID
	}
	return nil
}

func (c Contingent) ZoneID() *int {
	if inst := c.Institution(); inst != nil {
		return inst.ZoneID
	}
	return nil
}

// PPD is the school district office. Only schools have one.
func (c Contingent) PPD() string {
	switch c.ContingentType {
	case ContingentSchool:
		if c.School != nil && c.School.PPD != "" {
			return c.School.PPD
		}
	case ContingentIndependent:
		return "INDEPENDENT"
	}
	return "Unknown PPD"
}

type Manager struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	IC           string    `json:"ic"`
	Email        string    `json:"email"`
	Phone        string    `json:"phoneNumber"`
	ContingentID int       `json:"contingentId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Contestant struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	IC           string    `json:"ic"`
	Email        string    `json:"email"`
	Gender       string    `json:"gender"`
	Age          *int      `json:"age"`
	EduLevel     string    `json:"eduLevel"`
	ClassGrade   string    `json:"classGrade"`
	ContingentID int       `json:"contingentId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FormattedClassGrade labels the class grade the way schools name them: "Darjah" for primary, "Tingkatan" for secondary.
func (c Contestant) FormattedClassGrade() string {
	return FormatClassGrade(c.EduLevel, c.ClassGrade)
}

func FormatClassGrade(eduLevel, classGrade string) string {
	if strings.EqualFold(classGrade, "ppki") {
		return classGrade
	}
	switch eduLevel {
	case "sekolah rendah":
		return "Darjah " + classGrade
	case "sekolah menengah":
		return "Tingkatan " + classGrade
	}
	return "Darjah/ Tingkatan " + classGrade
}

type Team struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	ContingentID int          `json:"contingentId"`
	MemberCount  int          `json:"memberCount"`
	Members      []Contestant `json:"members,omitempty"`
	Managers     []Manager    `json:"managers,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ContingentDetail is a contingent with its managers and teams.
type ContingentDetail struct {
	Contingent
	Managers []Manager `json:"managers"`
	Teams    []Team    `json:"teams"`
}

type TargetGroup struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	SchoolLevel string `json:"schoolLevel"`
	MinAge      *int   `json:"minAge"`
	MaxAge      *int   `json:"maxAge"`
}

// Label is the contest group of the target group: Kids, Teens or Youth.
func (tg TargetGroup) Label() string {
	return TargetGroupLabel(tg.SchoolLevel)
}

func TargetGroupLabel(schoolLevel string) string {
	switch schoolLevel {
	case "Primary":
		return "Kids"
	case "Secondary":
		return "Teens"
	case "Higher Education":
		return "Youth"
	}
	return schoolLevel
}

// AgeRange returns the target group's age bounds, defaulting to 0 and 100.
func (tg TargetGroup) AgeRange() (min, max int) {
	min, max = defaultMinAge, defaultMaxAge
	if tg.MinAge != nil {
		min = *tg.MinAge
	}
	if tg.MaxAge != nil {
		max = *tg.MaxAge
	}
	return min, max
}

// EndlistTeam is a team whose registration to an event contest is approved.
type EndlistTeam struct {
	TeamID           int          `json:"teamId"`
	TeamName         string       `json:"teamName"`
	Status           string       `json:"status"`
	RegistrationDate time.Time    `json:"registrationDate"`
	ContestID        int          `json:"contestId"`
	ContestCode      string       `json:"contestCode"`
	ContestName      string       `json:"contestName"`
	TargetGroup      TargetGroup  `json:"targetGroup"`
	Contingent       Contingent   `json:"contingent"`
	Members          []Contestant `json:"members"`
	Managers         []Manager    `json:"managers"`
}

// Eligible reports whether the team belongs to the endlist proper:
// APPROVED_SPECIAL teams always do, other teams need members all within the target group's age range.
func (t EndlistTeam) Eligible() bool {
	if t.Status == StatusApprovedSpecial {
		return true
	}
	if len(t.Members) == 0 {
		return false
	}
	for _, m := range t.Members {
		if !t.MemberEligible(m) {
			return false
		}
	}
	return true
}

// MemberEligible reports whether the member's age lies within the target group's range.
// Every member of an APPROVED_SPECIAL team is eligible.
func (t EndlistTeam) MemberEligible(m Contestant) bool {
	if t.Status == StatusApprovedSpecial {
		return true
	}
	min, max := t.TargetGroup.AgeRange()
	age := 0
	if m.Age != nil {
		age = *m.Age
	}
	return age >= min && age <= max
}

// ContestGroup is the team's contest group label.
func (t EndlistTeam) ContestGroup() string {
	return t.TargetGroup.Label()
}

// ContestFullName is "<code> <name>".
func (t EndlistTeam) ContestFullName() string {
	return strings.TrimSpace(t.ContestCode + " " + t.ContestName)
}

// EndlistContingent summarises a contingent of the endlist and its attendance sync state.
type EndlistContingent struct {
	ID              int        `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	ContingentType  string     `json:"contingentType" db:"contingent_type"`
	InstitutionName string     `json:"institutionName" db:"institution_name"`
	StateName       string     `json:"stateName" db:"state_name"`
	TeamCount       int        `json:"teamCount" db:"team_count"`
	ContestantCount int        `json:"contestantCount" db:"contestant_count"`
	SyncedTeamCount int        `json:"syncedTeamCount" db:"synced_team_count"`
	IsSynced        bool       `json:"isSynced" db:"-"`
	NeedsSync       bool       `json:"needsSync" db:"-"`
	LastSyncDate    *time.Time `json:"lastSyncDate" db:"last_sync_date"`
}

// SetSyncState computes IsSynced and NeedsSync from the team counts.
func (ec *EndlistContingent) SetSyncState() {
	ec.IsSynced = ec.SyncedTeamCount > 0 && ec.SyncedTeamCount == ec.TeamCount
	ec.NeedsSync = ec.TeamCount > 0 && !ec.IsSynced
}

type ContingentFilter struct {
	Search  string `query:"search"`
	StateID int    `query:"state"`
}

func (f *ContingentFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}

type ContestantFilter struct {
	Search string `query:"search"`
}

func (f *ContestantFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}

// NewContestant contains information needed to register a Contestant.
type NewContestant struct {
	Name         string `json:"name" validate:"required"`
	IC           string `json:"ic" validate:"required,ic"`
	Email        string `json:"email" validate:"omitempty,email"`
	Gender       string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Age          *int   `json:"age" validate:"omitempty,min=4,max=100"`
	EduLevel     string `json:"eduLevel"`
	ClassGrade   string `json:"classGrade"`
	ContingentID int    `json:"contingentId" validate:"required"`
}

func (nc *NewContestant) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.IC = core.CleanString(nc.IC)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.Gender = strings.ToUpper(core.CleanString(nc.Gender))
	nc.EduLevel = core.CleanString(nc.EduLevel, true /* lower */)
	nc.ClassGrade = core.CleanString(nc.ClassGrade)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	nc.IC = core.NormalizeIC(nc.IC)
	return nil
}

// UpdateContestant defines what information may be provided to modify an existing Contestant.
type UpdateContestant struct {
	Name       string `json:"name"`
	IC         string `json:"ic" validate:"omitempty,ic"`
	Email      string `json:"email" validate:"omitempty,email"`
	Gender     string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Age        *int   `json:"age" validate:"omitempty,min=4,max=100"`
	EduLevel   string `json:"eduLevel"`
	ClassGrade string `json:"classGrade"`
}

func (uc *UpdateContestant) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.IC = core.CleanString(uc.IC)
	uc.Email = core.CleanString(uc.Email, true /* lower */)
	uc.Gender = strings.ToUpper(core.CleanString(uc.Gender))
	uc.EduLevel = core.CleanString(uc.EduLevel, true /* lower */)
	uc.ClassGrade = core.CleanString(uc.ClassGrade)
	if err := validate.Struct(uc); err != nil {
		return err
	}
	uc.IC = core.NormalizeIC(uc.IC)
	return nil
}

// apply copies the non-empty fields onto c.
func (uc UpdateContestant) apply(c Contestant) Contestant {
	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.IC != "" {
		c.IC = uc.IC
	}
	if uc.Email != "" {
		c.Email = uc.Email
	}
	if uc.Gender != "" {
		c.Gender = uc.Gender
	}
	if uc.Age != nil {
		c.Age = uc.Age
	}
	if uc.EduLevel != "" {
		c.EduLevel = uc.EduLevel
	}
	if uc.ClassGrade != "" {
		c.ClassGrade = uc.ClassGrade
	}
	return c
}
