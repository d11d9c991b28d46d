package attendance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/syaifulazham/techlympics/core"
)

// Attendance statuses
const (
	StatusPresent    = "Present"
	StatusNotPresent = "Not Present"
)

// Manager email statuses
const (
	EmailPending = "PENDING"
	EmailSent    = "SENT"
	EmailFailed  = "FAILED"
)

// Log participant types
const (
	ParticipantManager    = "manager"
	ParticipantContestant = "contestant"
)

// Check-in methods
const (
	MethodQRScan = "QR_SCAN"
	MethodManual = "MANUAL"
)

// Endpoint kinds
const (
	EndpointContingent = "CONTINGENT"
	EndpointAgent      = "AGENT"
)

var contestGroups = map[string]string{"kids": "Kids", "teens": "Teens", "youth": "Youth"}

// ContestGroups maps the enabled group flags (kids, teens, youth) to contest group labels, in a stable order.
func ContestGroups(flags map[string]bool) []string {
	groups := make([]string, 0, len(contestGroups))
	for flag, label := range contestGroups {
		if flags[flag] {
			groups = append(groups, label)
		}
	}
	sort.Strings(groups)
	return groups
}

// Hashcode is the check-in code of a participant of an event contingent.
func Hashcode(ic string, eventID, contingentID int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d-%d", ic, eventID, contingentID)))
	return hex.EncodeToString(sum[:])
}

func contingentIC(contingentID int) string { return fmt.Sprintf("contingent-%d", contingentID) }
func teamIC(teamID int) string { return fmt.Sprintf("team-%d", teamID) }

// personIC is the identity used to hash a person's code: the IC number, or the id when missing.
func personIC(ic string, id int) string {
	if ic = strings.TrimSpace(ic); ic != "" {
		return ic
	}
	return fmt.Sprintf("%d", id)
}

// Record holds what all attendance rows have in common.
type Record struct {
	ID               int        `json:"id"`
	Hashcode         string     `json:"hashcode"`
	EventID          int        `json:"eventId"`
	ContingentID     int        `json:"contingentId"`
	StateID          *int       `json:"stateId"`
	ZoneID           *int       `json:"zoneId"`
	State            string     `json:"state"`
	AttendanceStatus string     `json:"attendanceStatus"`
	AttendanceDate   *time.Time `json:"attendanceDate"`
	AttendanceTime   *time.Time `json:"attendanceTime"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (r Record) Present() bool { return r.AttendanceStatus == StatusPresent }

type ContingentRecord struct {
	Record
}

type TeamRecord struct {
	Record
	TeamID int `json:"teamId"`
}

type ContestantRecord struct {
	Record
	ContestantID int    `json:"contestantId"`
	TeamID       int    `json:"teamId"`
	Name         string `json:"name"`
	IC           string `json:"ic"`
	ContestGroup string `json:"contestGroup"`
	ContestID    int    `json:"contestId"`
	ContestName  string `json:"contestName"`
}

type ManagerRecord struct {
	Record
	ManagerID    int    `json:"managerId"`
	Name         string `json:"name"`
	IC           string `json:"ic"`
	Email        string `json:"email"`
	EmailStatus  string `json:"emailStatus"`
	ContestGroup string `json:"contestGroup"`
}

type LogEntry struct {
	ID              int       `json:"id"`
	EventID         int       `json:"eventId"`
	ParticipantType string    `json:"participantType"`
	ParticipantID   int       `json:"participantId"`
	CheckInTime     time.Time `json:"checkInTime"`
	Method          string    `json:"method"`
	EndpointHash    string    `json:"endpointHash"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Endpoint is a check-in station of an event.
type Endpoint struct {
	ID           int       `json:"id"`
	EventID      int       `json:"eventId"`
	Endpointhash string    `json:"endpointhash"`
	Kind         string    `json:"kind"`
	PasscodeHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (ep *Endpoint) SetPasscode(passcode string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	ep.PasscodeHash = hash
	return nil
}

func (ep Endpoint) CheckPasscode(passcode string) bool {
	if len(ep.PasscodeHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(ep.PasscodeHash, []byte(passcode)) == nil
}

type NewEndpoint struct {
	Kind     string `json:"kind" validate:"required,oneof=CONTINGENT AGENT"`
	Passcode string `json:"passcode" validate:"required,min=4,max=64"`
}

func (ne *NewEndpoint) Validate(validate *validator.Validate) error {
	ne.Kind = strings.ToUpper(core.CleanString(ne.Kind))
	if ne.Kind == "" {
		ne.Kind = EndpointContingent
	}
	return validate.Struct(ne)
}

// PresenceCounts tells how many rows were marked present.
type PresenceCounts struct {
	Contingents int `json:"contingents"`
	Teams       int `json:"teams"`
	Contestants int `json:"contestants"`
	Managers    int `json:"managers"`
}

type CheckInRequest struct {
	EventID      int    `json:"eventId" validate:"required"`
	Endpointhash string `json:"endpointhash" validate:"required"`
	Hashcode     string `json:"hashcode" validate:"required"`
}

func (r *CheckInRequest) Validate(validate *validator.Validate) error {
	r.Endpointhash = core.CleanString(r.Endpointhash)
	r.Hashcode = core.CleanString(r.Hashcode)
	return validate.Struct(r)
}

type AgentCheckInRequest struct {
	Code   string `json:"code" validate:"required"`
	Method string `json:"method" validate:"omitempty,oneof=QR_SCAN MANUAL"`
}

func (r *AgentCheckInRequest) Validate(validate *validator.Validate) error {
	r.Code = core.CleanString(r.Code)
	r.Method = strings.ToUpper(core.CleanString(r.Method))
	if r.Method == "" {
		r.Method = MethodQRScan
	}
	return validate.Struct(r)
}

// AgentSession is what an agent passcode session is bound to.
type AgentSession struct {
	EventID      int
	Endpointhash string
}

type PasscodeRequest struct {
	EventID      int    `json:"eventId" validate:"required"`
	Endpointhash string `json:"endpointhash" validate:"required"`
	Passcode     string `json:"passcode" validate:"required"`
}

type CheckInResult struct {
	Message         string         `json:"message"`
	ParticipantType string         `json:"participantType"`
	ParticipantName string         `json:"participantName"`
	ContingentID    int            `json:"contingentId"`
	CheckInTime     time.Time      `json:"checkInTime"`
	Updated         PresenceCounts `json:"updated"`
}

// Organizer record methods
const (
	RecordQRCode = "qrcode"
	RecordManual = "manual"
)

type RecordRequest struct {
	Method       string `json:"method" validate:"required,oneof=qrcode manual"`
	Hashcode     string `json:"hashcode"`
	ContingentID int    `json:"contingentId"`
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // HH:MM
	Endpointhash string `json:"endpointhash"`

	at time.Time
}

var (
	recordDateLayout = "2006-01-02"
	recordTimeLayout = "15:04"
	localTZ          = loadLocalTZ()
)

func loadLocalTZ() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kuala_Lumpur"); err == nil {
		return loc
	}
	return time.FixedZone("MYT", 8*60*60)
}

func (r *RecordRequest) Validate(validate *validator.Validate) error {
	r.Method = strings.ToLower(core.CleanString(r.Method))
	r.Hashcode = core.CleanString(r.Hashcode)
	r.Date = core.CleanString(r.Date)
	r.Time = core.CleanString(r.Time)
	if err := validate.Struct(r); err != nil {
		return err
	}

	var fields []core.FieldError
	switch r.Method {
	case RecordQRCode:
		if r.Hashcode == "" {
			fields = append(fields, core.FieldError{Field: "hashcode", Error: "This field is required."})
		}
	case RecordManual:
		if r.ContingentID == 0 {
			fields = append(fields, core.FieldError{Field: "contingentId", Error: "This field is required."})
		}
		at, err := time.ParseInLocation(recordDateLayout+" "+recordTimeLayout, r.Date+" "+r.Time, localTZ)
		if err != nil {
			fields = append(fields, core.FieldError{Field: "date", Error: "date and time must be YYYY-MM-DD and HH:MM"})
		}
		r.at = at
	}
	if len(fields) > 0 {
		return core.NewValidationError(nil, fields...)
	}
	return nil
}

// ChunkMetrics counts what a sync chunk created and refreshed.
type ChunkMetrics struct {
	ProcessedTeams     int      `json:"processedTeams"`
	NewContingents     int      `json:"newContingents"`
	UpdatedContingents int      `json:"updatedContingents"`
	NewTeams           int      `json:"newTeams"`
	UpdatedTeams       int      `json:"updatedTeams"`
	NewContestants     int      `json:"newContestants"`
	UpdatedContestants int      `json:"updatedContestants"`
	NewManagers        int      `json:"newManagers"`
	UpdatedManagers    int      `json:"updatedManagers"`
	ErrorCount         int      `json:"errorCount"`
	Errors             []string `json:"errors"`
}

func (m *ChunkMetrics) addError(msg string) {
	m.ErrorCount++
	m.Errors = append(m.Errors, msg)
}

// Add aggregates o into m, prefixing o's errors.
func (m *ChunkMetrics) Add(o ChunkMetrics, errPrefix string) {
	m.ProcessedTeams += o.ProcessedTeams
	m.NewContingents += o.NewContingents
	m.UpdatedContingents += o.UpdatedContingents
	m.NewTeams += o.NewTeams
	m.UpdatedTeams += o.UpdatedTeams
	m.NewContestants += o.NewContestants
	m.UpdatedContestants += o.UpdatedContestants
	m.NewManagers += o.NewManagers
	m.UpdatedManagers += o.UpdatedManagers
	m.ErrorCount += o.ErrorCount
	for _, e := range o.Errors {
		m.Errors = append(m.Errors, errPrefix+e)
	}
}

func tally(created bool, newCount, updatedCount *int) {
	if created {
		*newCount++
	} else {
		*updatedCount++
	}
}

type CountResult struct {
	TotalTeams  int `json:"totalTeams"`
	ChunkSize   int `json:"chunkSize"`
	TotalChunks int `json:"totalChunks"`
}

type ChunkResult struct {
	Message string       `json:"message"`
	Metrics ChunkMetrics `json:"syncResults"`
}

// CleanChunkSize defaults size to def and clamps it to [1, max].
func CleanChunkSize(size, def, max int) int {
	if size <= 0 {
		size = def
	}
	if size < 1 {
		size = 1
	}
	if max > 0 && size > max {
		size = max
	}
	return size
}

// Ref identifies a row by id and name.
type Ref struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type EntityCounts struct {
	Contingents int `json:"contingents"`
	Teams       int `json:"teams"`
	Contestants int `json:"contestants"`
	Managers    int `json:"managers"`
}

func (c EntityCounts) Sub(o EntityCounts) EntityCounts {
	return EntityCounts{
		Contingents: c.Contingents - o.Contingents,
		Teams:       c.Teams - o.Teams,
		Contestants: c.Contestants - o.Contestants,
		Managers:    c.Managers - o.Managers,
	}
}

func (c EntityCounts) IsZero() bool { return c == EntityCounts{} }

type Mismatch struct {
	MissingInAttendance []Ref `json:"missingInAttendance"`
	ExtraInAttendance   []Ref `json:"extraInAttendance"`
}

func (m Mismatch) Empty() bool { return len(m.MissingInAttendance) == 0 && len(m.ExtraInAttendance) == 0 }

type Mismatches struct {
	Contingents Mismatch `json:"contingents"`
	Teams       Mismatch `json:"teams"`
	Contestants Mismatch `json:"contestants"`
	Managers    Mismatch `json:"managers"`
}

func (m Mismatches) Empty() bool {
	return m.Contingents.Empty() && m.Teams.Empty() && m.Contestants.Empty() && m.Managers.Empty()
}

// Snapshot lists the participants an event's attendance rows refer to.
type Snapshot struct {
	Contingents []Ref
	Teams       []Ref
	Contestants []Ref
	Managers    []Ref
}

func (s Snapshot) Counts() EntityCounts {
	return EntityCounts{
		Contingents: len(s.Contingents),
		Teams:       len(s.Teams),
		Contestants: len(s.Contestants),
		Managers:    len(s.Managers),
	}
}

type SyncStatus struct {
	IsSynced       bool         `json:"isSynced"`
	LastSyncDate   *time.Time   `json:"lastSyncDate"`
	ActualCounts   EntityCounts `json:"actualCounts"`
	ExpectedCounts EntityCounts `json:"expectedCounts"`
	Differences    EntityCounts `json:"differences"`
	Mismatches     Mismatches   `json:"mismatches"`
}

type CleanupDetail struct {
	Type   string `json:"type"`
	ID     int    `json:"id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

type CleanupResult struct {
	DeletedContestants     int             `json:"deletedContestants"`
	DeletedTeams           int             `json:"deletedTeams"`
	DeletedTeamContestants int             `json:"deletedTeamContestants"`
	Details                []CleanupDetail `json:"details"`
}

type Stats struct {
	TotalContingents    int `json:"totalContingents" db:"total_contingents"`
	TotalTeams          int `json:"totalTeams" db:"total_teams"`
	TotalContestants    int `json:"totalContestants" db:"total_contestants"`
	TotalManagers       int `json:"totalManagers" db:"total_managers"`
	TotalParticipants   int `json:"totalParticipants" db:"-"`
	PresentContingents  int `json:"presentContingents" db:"present_contingents"`
	PresentTeams        int `json:"presentTeams" db:"present_teams"`
	PresentContestants  int `json:"presentContestants" db:"present_contestants"`
	PresentManagers     int `json:"presentManagers" db:"present_managers"`
	PresentParticipants int `json:"presentParticipants" db:"-"`
	AttendanceRate      int `json:"attendanceRate" db:"-"`
}

// complete computes the participant totals and the attendance rate.
func (s *Stats) complete() {
	s.TotalParticipants = s.TotalContestants + s.TotalManagers
	s.PresentParticipants = s.PresentContestants + s.PresentManagers
	s.AttendanceRate = attendanceRate(s.PresentParticipants, s.TotalParticipants)
}

type StateStats struct {
	StateID             int    `json:"stateId" db:"state_id"`
	StateName           string `json:"stateName" db:"state_name"`
	TotalContingents    int    `json:"totalContingents" db:"total_contingents"`
	TotalTeams          int    `json:"totalTeams" db:"total_teams"`
	TotalContestants    int    `json:"totalContestants" db:"total_contestants"`
	PresentContingents  int    `json:"presentContingents" db:"present_contingents"`
	PresentTeams        int    `json:"presentTeams" db:"present_teams"`
	PresentContestants  int    `json:"presentContestants" db:"present_contestants"`
	TotalParticipants   int    `json:"totalParticipants" db:"-"`
	PresentParticipants int    `json:"presentParticipants" db:"-"`
	AttendanceRate      int    `json:"attendanceRate" db:"-"`
}

func (s *StateStats) complete() {
	s.TotalParticipants = s.TotalContestants
	s.PresentParticipants = s.PresentContestants
	s.AttendanceRate = attendanceRate(s.PresentParticipants, s.TotalParticipants)
}

type DailyCount struct {
	Date  string `json:"date" db:"date"`
	Count int    `json:"count" db:"count"`
}

type HourlyCount struct {
	Hour  int `json:"hour" db:"hour"`
	Count int `json:"count" db:"count"`
}

type Statistics struct {
	Stats            Stats         `json:"stats"`
	StateStats       []StateStats  `json:"stateStats"`
	DailyAttendance  []DailyCount  `json:"dailyAttendance"`
	HourlyAttendance []HourlyCount `json:"hourlyAttendance"`
}

// attendanceRate is present/total as a rounded percentage.
func attendanceRate(present, total int) int {
	if total <= 0 {
		return 0
	}
	return int((float64(present)*100)/float64(total) + 0.5)
}

// ExportData holds the attendance rows of an event, for spreadsheets.
type ExportData struct {
	EventName   string
	Contingents []ExportContingent
	Teams       []ExportTeam
	Contestants []ExportContestant
	Managers    []ExportManager
}

type ExportContingent struct {
	ContingentID     int        `db:"contingent_id"`
	Name             string     `db:"name"`
	State            string     `db:"state"`
	AttendanceStatus string     `db:"attendance_status"`
	AttendanceTime   *time.Time `db:"attendance_time"`
}

type ExportTeam struct {
	TeamID           int        `db:"team_id"`
	Name             string     `db:"name"`
	Contingent       string     `db:"contingent"`
	State            string     `db:"state"`
	AttendanceStatus string     `db:"attendance_status"`
	AttendanceTime   *time.Time `db:"attendance_time"`
}

type ExportContestant struct {
	ContestantID     int        `db:"contestant_id"`
	Name             string     `db:"name"`
	IC               string     `db:"ic"`
	Team             string     `db:"team"`
	Contingent       string     `db:"contingent"`
	ContestName      string     `db:"contest_name"`
	ContestGroup     string     `db:"contest_group"`
	State            string     `db:"state"`
	AttendanceStatus string     `db:"attendance_status"`
	AttendanceTime   *time.Time `db:"attendance_time"`
}

type ExportManager struct {
	ManagerID        int        `db:"manager_id"`
	Name             string     `db:"name"`
	Email            string     `db:"email"`
	Contingent       string     `db:"contingent"`
	State            string     `db:"state"`
	EmailStatus      string     `db:"email_status"`
	AttendanceStatus string     `db:"attendance_status"`
	AttendanceTime   *time.Time `db:"attendance_time"`
}

// SendCodesResult counts the manager code emails queued and refused.
type SendCodesResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
