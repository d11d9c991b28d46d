package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/certificate"
)

var (
	serialColumns   = []string{"id", "year", "template_id", "target_type", "type_code", "last_sequence", "created_at", "updated_at"}
	templateColumns = []string{"id", "template_name", "target_type", "event_id", "status", "created_at", "updated_at"}
	certColumns     = []string{
		"template_id", "recipient_name", "recipient_email", "recipient_type", "contestant_id",
		"ic_number", "award_title", "serial_number", "status", "created_by", "created_at", "updated_at",
	}
	certSelect = []string{
		"cert.id", "cert.template_id", "cert.recipient_name", "cert.recipient_email", "cert.recipient_type",
		"cert.contestant_id", "cert.ic_number", "cert.award_title", "cert.serial_number", "cert.status",
		"cert.created_by", "cert.created_at", "cert.updated_at",
		"ct.template_name", "ct.target_type",
	}
)

type serialRow struct {
	ID           int       `boil:"id"`
	Year         int       `boil:"year"`
	TemplateID   int       `boil:"template_id"`
	TargetType   string    `boil:"target_type"`
	TypeCode     string    `boil:"type_code"`
	LastSequence int       `boil:"last_sequence"`
	CreatedAt    time.Time `boil:"created_at"`
	UpdatedAt    time.Time `boil:"updated_at"`
}

func (r serialRow) unboil() certificate.Serial {
	return certificate.Serial{
		ID:           r.ID,
		Year:         r.Year,
		TemplateID:   r.TemplateID,
		TargetType:   r.TargetType,
		TypeCode:     r.TypeCode,
		LastSequence: r.LastSequence,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type templateRow struct {
	ID           int       `boil:"id"`
	TemplateName string    `boil:"template_name"`
	TargetType   string    `boil:"target_type"`
	EventID      null.Int  `boil:"event_id"`
	Status       string    `boil:"status"`
	CreatedAt    time.Time `boil:"created_at"`
	UpdatedAt    time.Time `boil:"updated_at"`
}

func (r templateRow) unboil() certificate.Template {
	return certificate.Template{
		ID:           r.ID,
		TemplateName: r.TemplateName,
		TargetType:   r.TargetType,
		EventID:      r.EventID.Ptr(),
		Status:       r.Status,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type certRow struct {
	ID             int         `boil:"id"`
	TemplateID     int         `boil:"template_id"`
	RecipientName  string      `boil:"recipient_name"`
	RecipientEmail null.String `boil:"recipient_email"`
	RecipientType  string      `boil:"recipient_type"`
	ContestantID   null.Int    `boil:"contestant_id"`
	ICNumber       null.String `boil:"ic_number"`
	AwardTitle     null.String `boil:"award_title"`
	SerialNumber   null.String `boil:"serial_number"`
	Status         string      `boil:"status"`
	CreatedBy      null.String `boil:"created_by"`
	CreatedAt      time.Time   `boil:"created_at"`
	UpdatedAt      time.Time   `boil:"updated_at"`
	TemplateName   null.String `boil:"template_name"`
	TargetType     null.String `boil:"target_type"`
}

func boilCert(c certificate.Certificate) certRow {
	return certRow{
		ID:             c.ID,
		TemplateID:     c.TemplateID,
		RecipientName:  c.RecipientName,
		RecipientEmail: nullString(c.RecipientEmail),
		RecipientType:  c.RecipientType,
		ContestantID:   null.IntFromPtr(c.ContestantID),
		ICNumber:       nullString(c.ICNumber),
		AwardTitle:     nullString(c.AwardTitle),
		SerialNumber:   nullString(c.SerialNumber),
		Status:         c.Status,
		CreatedBy:      nullString(c.CreatedBy),
		CreatedAt:      c.CreatedAt.UTC(),
		UpdatedAt:      c.UpdatedAt.UTC(),
	}
}

func (r certRow) unboil() certificate.Certificate {
	return certificate.Certificate{
		ID:             r.ID,
		TemplateID:     r.TemplateID,
		TemplateName:   r.TemplateName.String,
		TargetType:     r.TargetType.String,
		RecipientName:  r.RecipientName,
		RecipientEmail: r.RecipientEmail.String,
		RecipientType:  r.RecipientType,
		ContestantID:   r.ContestantID.Ptr(),
		ICNumber:       r.ICNumber.String,
		AwardTitle:     r.AwardTitle.String,
		SerialNumber:   r.SerialNumber.String,
		Status:         r.Status,
		CreatedBy:      r.CreatedBy.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type certificateRepository struct {
	repo
}

var _ certificate.Repository = (*certificateRepository)(nil)

func NewCertificateRepository(exec core.DBExecutor) *certificateRepository {
	return &certificateRepository{repo{exec: exec}}
}

func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func serialMods(year, templateID int, targetType string) []qm.QueryMod {
	return []qm.QueryMod{
		qm.Select(serialColumns...),
		qm.From("certificate_serial"),
		qm.Where("year = ? AND template_id = ? AND target_type = ?", year, templateID, targetType),
	}
}

func (repo certificateRepository) LockSerial(ctx context.Context, year, templateID int, targetType string, exec ...core.DBExecutor) (certificate.Serial, error) {
	var r serialRow
	err := one(ctx, repo.getExec(exec), &r, append(serialMods(year, templateID, targetType), qm.For("UPDATE"))...)
	if err != nil {
		return certificate.Serial{}, trapNoRows(err, certificate.ErrSerialNotFound, "locking serial sequence")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) GetSerial(ctx context.Context, year, templateID int, targetType string, exec ...core.DBExecutor) (certificate.Serial, error) {
	var r serialRow
	if err := one(ctx, repo.getExec(exec), &r, serialMods(year, templateID, targetType)...); err != nil {
		return certificate.Serial{}, trapNoRows(err, certificate.ErrSerialNotFound, "finding serial sequence")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) CreateSerial(ctx context.Context, s certificate.Serial, exec ...core.DBExecutor) (certificate.Serial, error) {
	q := fmt.Sprintf(
		"%s ON CONFLICT (year, template_id, target_type) DO UPDATE SET last_sequence = certificate_serial.last_sequence + 1, updated_at = EXCLUDED.updated_at RETURNING %s",
		insertQuery("certificate_serial", serialColumns[1:]), "id, last_sequence, created_at")

	r := serialRow{
		Year:         s.Year,
		TemplateID:   s.TemplateID,
		TargetType:   s.TargetType,
		TypeCode:     s.TypeCode,
		LastSequence: s.LastSequence,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
	err := queries.Raw(q, r.Year, r.TemplateID, r.TargetType, r.TypeCode, r.LastSequence, r.CreatedAt, r.UpdatedAt).
		QueryRowContext(ctx, repo.getExec(exec)).Scan(&r.ID, &r.LastSequence, &r.CreatedAt)
	if err != nil {
		return certificate.Serial{}, errors.Wrap(err, "inserting serial sequence")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) UpdateSequence(ctx context.Context, id, sequence int, exec ...core.DBExecutor) error {
	res, err := queries.Raw(
		"UPDATE certificate_serial SET last_sequence = $1, updated_at = now() WHERE id = $2", sequence, id,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "updating serial sequence")
	}
	return checkAffected(res, certificate.ErrSerialNotFound)
}

func (repo certificateRepository) TemplateSerials(ctx context.Context, templateID int, exec ...core.DBExecutor) ([]certificate.Serial, error) {
	var rows []serialRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(serialColumns...), qm.From("certificate_serial"),
		qm.Where("template_id = ?", templateID), qm.OrderBy("year DESC, target_type ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying serial sequences")
	}
	serials := make([]certificate.Serial, 0, len(rows))
	for _, r := range rows {
		serials = append(serials, r.unboil())
	}
	return serials, nil
}

func (repo certificateRepository) CreateTemplate(ctx context.Context, t certificate.Template, exec ...core.DBExecutor) (certificate.Template, error) {
	r := templateRow{
		TemplateName: t.TemplateName,
		TargetType:   t.TargetType,
		EventID:      null.IntFromPtr(t.EventID),
		Status:       t.Status,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
	q := insertQuery("cert_template", templateColumns[1:], "id")
	err := queries.Raw(q, r.TemplateName, r.TargetType, r.EventID, r.Status, r.CreatedAt, r.UpdatedAt).
		QueryRowContext(ctx, repo.getExec(exec)).Scan(&r.ID)
	if err != nil {
		return certificate.Template{}, errors.Wrap(err, "inserting certificate template")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) GetTemplate(ctx context.Context, id int, exec ...core.DBExecutor) (certificate.Template, error) {
	var r templateRow
	err := one(ctx, repo.getExec(exec), &r, qm.Select(templateColumns...), qm.From("cert_template"), qm.Where("id = ?", id))
	if err != nil {
		return certificate.Template{}, trapNoRows(err, certificate.ErrTemplateNotFound, "finding certificate template")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) ListTemplates(ctx context.Context, exec ...core.DBExecutor) ([]certificate.Template, error) {
	var rows []templateRow
	err := all(ctx, repo.getExec(exec), &rows, qm.Select(templateColumns...), qm.From("cert_template"), qm.OrderBy("created_at DESC, id DESC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying certificate templates")
	}
	templates := make([]certificate.Template, 0, len(rows))
	for _, r := range rows {
		templates = append(templates, r.unboil())
	}
	return templates, nil
}

func (repo certificateRepository) CreateCertificate(ctx context.Context, c certificate.Certificate, exec ...core.DBExecutor) (certificate.Certificate, error) {
	r := boilCert(c)
	q := insertQuery("certificate", certColumns, "id")
	err := queries.Raw(q,
		r.TemplateID, r.RecipientName, r.RecipientEmail, r.RecipientType, r.ContestantID,
		r.ICNumber, r.AwardTitle, r.SerialNumber, r.Status, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	).QueryRowContext(ctx, repo.getExec(exec)).Scan(&r.ID)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) getCertificate(ctx context.Context, exe core.DBExecutor, where qm.QueryMod) (certificate.Certificate, error) {
	var r certRow
	err := one(ctx, exe, &r,
		qm.Select(certSelect...), qm.From("certificate cert"),
		qm.InnerJoin("cert_template ct ON ct.id = cert.template_id"), where)
	if err != nil {
		return certificate.Certificate{}, trapNoRows(err, certificate.ErrNotFound, "finding certificate")
	}
	return r.unboil(), nil
}

func (repo certificateRepository) GetCertificate(ctx context.Context, id int, exec ...core.DBExecutor) (certificate.Certificate, error) {
	return repo.getCertificate(ctx, repo.getExec(exec), qm.Where("cert.id = ?", id))
}

func (repo certificateRepository) GetCertificateBySerial(ctx context.Context, serial string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	return repo.getCertificate(ctx, repo.getExec(exec), qm.Where("cert.serial_number = ?", serial))
}

func (repo certificateRepository) QueryCertificates(ctx context.Context, templateID int, filter *certificate.QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]certificate.Certificate, int, error) {
	exe := repo.getExec(exec)
	mods := []qm.QueryMod{
		qm.From("certificate cert"),
		qm.InnerJoin("cert_template ct ON ct.id = cert.template_id"),
		qm.Where("cert.template_id = ?", templateID),
	}
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Expr(qm.Where(
				"cert.recipient_name ILIKE ? OR cert.ic_number ILIKE ? OR cert.serial_number ILIKE ?", val, val, val)))
		}
		if filter.Status != "" {
			mods = append(mods, qm.Where("cert.status = ?", filter.Status))
		}
	}

	total, err := count(ctx, exe, mods...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting certificates")
	}

	mods = append(mods, qm.Select(certSelect...), qm.OrderBy("cert.created_at DESC, cert.id DESC"))
	mods = append(mods, paginate(page)...)
	var rows []certRow
	if err = all(ctx, exe, &rows, mods...); err != nil {
		return nil, 0, errors.Wrap(err, "querying certificates")
	}
	certs := make([]certificate.Certificate, 0, len(rows))
	for _, r := range rows {
		certs = append(certs, r.unboil())
	}
	return certs, total, nil
}

func (repo certificateRepository) UpdateCertificateStatus(ctx context.Context, id int, status string, exec ...core.DBExecutor) error {
	res, err := queries.Raw(
		"UPDATE certificate SET status = $1, updated_at = now() WHERE id = $2", status, id,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "updating certificate status")
	}
	return checkAffected(res, certificate.ErrNotFound)
}

func (repo certificateRepository) DeleteCertificate(ctx context.Context, id int, exec ...core.DBExecutor) error {
	q := newQuery(qm.From("certificate"), qm.Where("id = ?", id))
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "deleting certificate")
	}
	return checkAffected(res, certificate.ErrNotFound)
}
