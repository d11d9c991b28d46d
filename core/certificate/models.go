package certificate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
)

// Target types
const (
	TargetGeneral               = "GENERAL"
	TargetEventParticipant      = "EVENT_PARTICIPANT"
	TargetEventWinner           = "EVENT_WINNER"
	TargetNonContestParticipant = "NON_CONTEST_PARTICIPANT"
	TargetQuizParticipant       = "QUIZ_PARTICIPANT"
	TargetQuizWinner            = "QUIZ_WINNER"
)

// Certificate statuses
const (
	StatusDraft   = "DRAFT"
	StatusReady   = "READY"
	StatusSent    = "SENT"
	StatusRevoked = "REVOKED"
)

// Recipient types
const (
	RecipientParticipant = "PARTICIPANT"
	RecipientTrainer     = "TRAINER"
	RecipientContingent  = "CONTINGENT"
)

var typeCodes = map[string]string{
	TargetGeneral:               "GEN",
	TargetEventParticipant:      "PART",
	TargetEventWinner:           "WIN",
	TargetNonContestParticipant: "NCP",
	TargetQuizParticipant:       "QPART",
	TargetQuizWinner:            "QWIN",
}

// TypeCode is the serial number code of a target type.
func TypeCode(targetType string) (string, error) {
	code, ok := typeCodes[targetType]
	if !ok {
		return "", errors.Wrapf(ErrInvalidTargetType, "%q", targetType)
	}
	return code, nil
}

// Serial is the sequence of serial numbers issued for a (year, template, target type).
type Serial struct {
	ID           int       `json:"id"`
	Year         int       `json:"year"`
	TemplateID   int       `json:"templateId"`
	TargetType   string    `json:"targetType"`
	TypeCode     string    `json:"typeCode"`
	LastSequence int       `json:"lastSequence"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type SerialParts struct {
	Prefix     string `json:"prefix"`
	Year       int    `json:"year"`
	YearShort  string `json:"yearShort"`
	TypeCode   string `json:"typeCode"`
	TemplateID int    `json:"templateId"`
	Sequence   int    `json:"sequence"`
}

// serialFormat reads and writes serial numbers like "MT25/GEN/T5/000001".
type serialFormat struct {
	prefix  string
	pattern *regexp.Regexp
}

func newSerialFormat(prefix string) serialFormat {
	return serialFormat{
		prefix:  prefix,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `\d{2}/(GEN|PART|WIN|NCP|QPART|QWIN)/T\d+/\d{6}$`),
	}
}

func (f serialFormat) format(year, templateID int, typeCode string, sequence int) string {
	return fmt.Sprintf("%s%02d/%s/T%d/%06d", f.prefix, year%100, typeCode, templateID, sequence)
}

func (f serialFormat) valid(serial string) bool {
	return f.pattern.MatchString(serial)
}

func (f serialFormat) parse(serial string) (SerialParts, error) {
	parts := strings.Split(serial, "/")
	if len(parts) != 4 || len(parts[0]) < 2 || !strings.HasPrefix(parts[2], "T") {
		return SerialParts{}, ErrInvalidSerial
	}
	prefixYear := parts[0]
	yearShort := prefixYear[len(prefixYear)-2:]
	yy, err := strconv.Atoi(yearShort)
	if err != nil {
		return SerialParts{}, ErrInvalidSerial
	}
	templateID, err := strconv.Atoi(parts[2][1:])
	if err != nil {
		return SerialParts{}, ErrInvalidSerial
	}
	sequence, err := strconv.Atoi(parts[3])
	if err != nil {
		return SerialParts{}, ErrInvalidSerial
	}
	return SerialParts{
		Prefix:     prefixYear[:len(prefixYear)-2],
		Year:       2000 + yy,
		YearShort:  yearShort,
		TypeCode:   parts[1],
		TemplateID: templateID,
		Sequence:   sequence,
	}, nil
}

type Template struct {
	ID           int       `json:"id"`
	TemplateName string    `json:"templateName"`
	TargetType   string    `json:"targetType"`
	EventID      *int      `json:"eventId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type NewTemplate struct {
	TemplateName string `json:"templateName" validate:"required"`
	TargetType   string `json:"targetType" validate:"required,oneof=GENERAL EVENT_PARTICIPANT EVENT_WINNER NON_CONTEST_PARTICIPANT QUIZ_PARTICIPANT QUIZ_WINNER"`
	EventID      *int   `json:"eventId"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.TemplateName = core.CleanString(nt.TemplateName)
	nt.TargetType = strings.ToUpper(core.CleanString(nt.TargetType))
	return validate.Struct(nt)
}

type Certificate struct {
	ID             int       `json:"id"`
	TemplateID     int       `json:"templateId"`
	TemplateName   string    `json:"templateName,omitempty"`
	TargetType     string    `json:"targetType,omitempty"`
	RecipientName  string    `json:"recipientName"`
	RecipientEmail string    `json:"recipientEmail"`
	RecipientType  string    `json:"recipientType"`
	ContestantID   *int      `json:"contestantId"`
	ICNumber       string    `json:"icNumber"`
	AwardTitle     string    `json:"awardTitle"`
	SerialNumber   string    `json:"serialNumber"`
	Status         string    `json:"status"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type NewCertificate struct {
	RecipientName  string `json:"recipientName" validate:"required"`
	RecipientEmail string `json:"recipientEmail" validate:"omitempty,email"`
	RecipientType  string `json:"recipientType" validate:"omitempty,oneof=PARTICIPANT TRAINER CONTINGENT"`
	ContestantID   *int   `json:"contestantId"`
	ICNumber       string `json:"icNumber" validate:"omitempty,ic"`
	AwardTitle     string `json:"awardTitle"`
}

func (nc *NewCertificate) Validate(validate *validator.Validate) error {
	nc.RecipientName = core.CleanString(nc.RecipientName)
	nc.RecipientEmail = core.CleanString(nc.RecipientEmail, true /* lower */)
	nc.RecipientType = strings.ToUpper(core.CleanString(nc.RecipientType))
	nc.ICNumber = core.CleanString(nc.ICNumber)
	nc.AwardTitle = core.CleanString(nc.AwardTitle)
	if nc.RecipientType == "" {
		nc.RecipientType = RecipientParticipant
	}
	if err := validate.Struct(nc); err != nil {
		return err
	}
	nc.ICNumber = core.NormalizeIC(nc.ICNumber)
	return nil
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=DRAFT READY SENT REVOKED"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = strings.ToUpper(core.CleanString(us.Status))
	return validate.Struct(us)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status string `query:"status"`
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.Status = strings.ToUpper(core.CleanString(f.Status))
}
