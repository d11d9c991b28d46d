package certificate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
)

var (
	// errors
	ErrNotFound          = errors.New("certificate not found")
	ErrTemplateNotFound  = errors.New("certificate template not found")
	ErrSerialNotFound    = errors.New("serial sequence not found")
	ErrInvalidTargetType = errors.New("invalid target type")
	ErrInvalidSerial     = errors.New("invalid serial number")
)

type (
	Repository interface {
		// LockSerial selects the sequence FOR UPDATE; exec must be a transaction.
		LockSerial(ctx context.Context, year, templateID int, targetType string, exec ...core.DBExecutor) (Serial, error)
		GetSerial(ctx context.Context, year, templateID int, targetType string, exec ...core.DBExecutor) (Serial, error)
		// CreateSerial inserts the sequence, or increments it when a concurrent transaction created it first.
		CreateSerial(ctx context.Context, s Serial, exec ...core.DBExecutor) (Serial, error)
		UpdateSequence(ctx context.Context, id, sequence int, exec ...core.DBExecutor) error
		TemplateSerials(ctx context.Context, templateID int, exec ...core.DBExecutor) ([]Serial, error)

		CreateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, id int, exec ...core.DBExecutor) (Template, error)
		ListTemplates(ctx context.Context, exec ...core.DBExecutor) ([]Template, error)

		CreateCertificate(ctx context.Context, c Certificate, exec ...core.DBExecutor) (Certificate, error)
		GetCertificate(ctx context.Context, id int, exec ...core.DBExecutor) (Certificate, error)
		GetCertificateBySerial(ctx context.Context, serial string, exec ...core.DBExecutor) (Certificate, error)
		QueryCertificates(ctx context.Context, templateID int, filter *QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]Certificate, int, error)
		UpdateCertificateStatus(ctx context.Context, id int, status string, exec ...core.DBExecutor) error
		DeleteCertificate(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service interface {
		// GenerateSerialNumber issues the next serial number of the (year, template, target type) sequence.
		// A zero year means the current one.
		GenerateSerialNumber(ctx context.Context, templateID int, targetType string, year int) (string, error)
		// PreviewSerialNumber returns the next serial number without issuing it.
		PreviewSerialNumber(ctx context.Context, templateID int, targetType string, year int) (string, error)
		ValidateSerialNumber(serial string) bool
		ParseSerialNumber(serial string) (SerialParts, error)
		CurrentSequence(ctx context.Context, templateID int, targetType string, year int) (int, error)
		TemplateSerials(ctx context.Context, templateID int) ([]Serial, error)
		SerialExists(ctx context.Context, serial string) (bool, error)
		GetBySerial(ctx context.Context, serial string) (Certificate, error)
		ResetSequence(ctx context.Context, templateID int, targetType string, year int) error

		CreateTemplate(ctx context.Context, nt NewTemplate) (Template, error)
		GetTemplate(ctx context.Context, id int) (Template, error)
		ListTemplates(ctx context.Context) ([]Template, error)

		// CreateCertificate issues a certificate of the template, with a new serial number.
		CreateCertificate(ctx context.Context, templateID int, nc NewCertificate, createdBy string) (Certificate, error)
		ListCertificates(ctx context.Context, templateID int, filter *QueryFilter, page core.Pagination) ([]Certificate, core.Page, error)
		GetCertificate(ctx context.Context, id int) (Certificate, error)
		UpdateStatus(ctx context.Context, id int, us UpdateStatus) (Certificate, error)
		DeleteCertificate(ctx context.Context, id int) error
	}

	service struct {
		repo    Repository
		format  serialFormat
		runInTx func(ctx context.Context, fn func(tx core.DBExecutor) error) error
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, db core.DB, repo Repository) *service {
	return &service{
		repo:   repo,
		format: newSerialFormat(conf.Certificate.SerialPrefix),
		runInTx: func(ctx context.Context, fn func(tx core.DBExecutor) error) error {
			return core.RunInTx(ctx, db, fn)
		},
		nowFunc: time.Now,
	}
}

func (svc *service) year(year int) int {
	if year > 0 {
		return year
	}
	return svc.nowFunc().Year()
}

// nextSerial increments the sequence inside tx, starting it at 1 when missing.
func (svc *service) nextSerial(ctx context.Context, templateID int, targetType string, year int, tx core.DBExecutor) (string, error) {
	typeCode, err := TypeCode(targetType)
	if err != nil {
		return "", err
	}

	seq := 1
	s, err := svc.repo.LockSerial(ctx, year, templateID, targetType, tx)
	switch {
	case err == nil:
		seq = s.LastSequence + 1
		if err = svc.repo.UpdateSequence(ctx, s.ID, seq, tx); err != nil {
			return "", errors.Wrap(err, "updating serial sequence")
		}
	case errors.Cause(err) == ErrSerialNotFound:
		now := svc.nowFunc().UTC()
		s, err = svc.repo.CreateSerial(ctx, Serial{
			Year:         year,
			TemplateID:   templateID,
			TargetType:   targetType,
			TypeCode:     typeCode,
			LastSequence: seq,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, tx)
		if err != nil {
			return "", errors.Wrap(err, "creating serial sequence")
		}
		seq = s.LastSequence
	default:
		return "", errors.Wrap(err, "locking serial sequence")
	}
	return svc.format.format(year, templateID, typeCode, seq), nil
}

func (svc *service) GenerateSerialNumber(ctx context.Context, templateID int, targetType string, year int) (string, error) {
	if _, err := TypeCode(targetType); err != nil {
		return "", err
	}
	var serial string
	err := svc.runInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		serial, err = svc.nextSerial(ctx, templateID, targetType, svc.year(year), tx)
		return err
	})
	return serial, err
}

func (svc *service) PreviewSerialNumber(ctx context.Context, templateID int, targetType string, year int) (string, error) {
	typeCode, err := TypeCode(targetType)
	if err != nil {
		return "", err
	}
	year = svc.year(year)
	current, err := svc.CurrentSequence(ctx, templateID, targetType, year)
	if err != nil {
		return "", err
	}
	return svc.format.format(year, templateID, typeCode, current+1), nil
}

func (svc *service) ValidateSerialNumber(serial string) bool {
	return svc.format.valid(serial)
}

func (svc *service) ParseSerialNumber(serial string) (SerialParts, error) {
	return svc.format.parse(serial)
}

// CurrentSequence returns the last issued sequence number, 0 when none was.
func (svc *service) CurrentSequence(ctx context.Context, templateID int, targetType string, year int) (int, error) {
	s, err := svc.repo.GetSerial(ctx, svc.year(year), templateID, targetType)
	if err != nil {
		if errors.Cause(err) == ErrSerialNotFound {
			return 0, nil
		}
		return 0, err
	}
	return s.LastSequence, nil
}

func (svc *service) TemplateSerials(ctx context.Context, templateID int) ([]Serial, error) {
	return svc.repo.TemplateSerials(ctx, templateID)
}

func (svc *service) SerialExists(ctx context.Context, serial string) (bool, error) {
	_, err := svc.repo.GetCertificateBySerial(ctx, serial)
	switch errors.Cause(err) {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	}
	return false, err
}

func (svc *service) GetBySerial(ctx context.Context, serial string) (Certificate, error) {
	if !svc.format.valid(serial) {
		return Certificate{}, ErrInvalidSerial
	}
	return svc.repo.GetCertificateBySerial(ctx, serial)
}

// ResetSequence restarts the sequence at 0. Serial numbers issued afterwards collide with existing ones.
func (svc *service) ResetSequence(ctx context.Context, templateID int, targetType string, year int) error {
	return svc.runInTx(ctx, func(tx core.DBExecutor) error {
		s, err := svc.repo.LockSerial(ctx, svc.year(year), templateID, targetType, tx)
		if err != nil {
			return err
		}
		return svc.repo.UpdateSequence(ctx, s.ID, 0, tx)
	})
}

func (svc *service) CreateTemplate(ctx context.Context, nt NewTemplate) (Template, error) {
	now := svc.nowFunc().UTC()
	return svc.repo.CreateTemplate(ctx, Template{
		TemplateName: nt.TemplateName,
		TargetType:   nt.TargetType,
		EventID:      nt.EventID,
		Status:       "ACTIVE",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *service) GetTemplate(ctx context.Context, id int) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *service) ListTemplates(ctx context.Context) ([]Template, error) {
	return svc.repo.ListTemplates(ctx)
}

func (svc *service) CreateCertificate(ctx context.Context, templateID int, nc NewCertificate, createdBy string) (Certificate, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return Certificate{}, err
	}

	var cert Certificate
	err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
		serial, err := svc.nextSerial(ctx, tmpl.ID, tmpl.TargetType, svc.year(0), tx)
		if err != nil {
			return err
		}
		now := svc.nowFunc().UTC()
		cert, err = svc.repo.CreateCertificate(ctx, Certificate{
			TemplateID:     tmpl.ID,
			RecipientName:  nc.RecipientName,
			RecipientEmail: nc.RecipientEmail,
			RecipientType:  nc.RecipientType,
			ContestantID:   nc.ContestantID,
			ICNumber:       nc.ICNumber,
			AwardTitle:     nc.AwardTitle,
			SerialNumber:   serial,
			Status:         StatusDraft,
			CreatedBy:      createdBy,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, tx)
		return errors.Wrap(err, "creating certificate")
	})
	if err != nil {
		return Certificate{}, err
	}
	cert.TemplateName, cert.TargetType = tmpl.TemplateName, tmpl.TargetType
	return cert, nil
}

func (svc *service) ListCertificates(ctx context.Context, templateID int, filter *QueryFilter, page core.Pagination) ([]Certificate, core.Page, error) {
	page.Clean()
	if filter != nil {
		filter.Clean()
	}
	certs, total, err := svc.repo.QueryCertificates(ctx, templateID, filter, page)
	if err != nil {
		return nil, core.Page{}, err
	}
	return certs, core.NewPage(page, total), nil
}

func (svc *service) GetCertificate(ctx context.Context, id int) (Certificate, error) {
	return svc.repo.GetCertificate(ctx, id)
}

func (svc *service) UpdateStatus(ctx context.Context, id int, us UpdateStatus) (Certificate, error) {
	if err := svc.repo.UpdateCertificateStatus(ctx, id, us.Status); err != nil {
		return Certificate{}, err
	}
	return svc.repo.GetCertificate(ctx, id)
}

func (svc *service) DeleteCertificate(ctx context.Context, id int) error {
	return svc.repo.DeleteCertificate(ctx, id)
}
