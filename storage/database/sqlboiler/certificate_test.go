package boiledrepos_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/certificate"
	boiledrepos "github.com/syaifulazham/techlympics/storage/database/sqlboiler"
	testutil "github.com/syaifulazham/techlympics/tests"
)

func prepareCertificates(t *testing.T) (*sql.DB, certificate.Repository) {
	t.Helper()
	db := testutil.PrepareDB(t)
	if _, err := db.Exec("DELETE FROM cert_template"); err != nil {
		t.Fatalf("emptying cert_template: %v", err)
	}
	return db, boiledrepos.NewCertificateRepository(db)
}

func createTemplate(t *testing.T, repo certificate.Repository, targetType string) certificate.Template {
	t.Helper()
	now := time.Now().UTC()
	tmpl, err := repo.CreateTemplate(context.Background(), certificate.Template{
		TemplateName: "Participation " + targetType,
		TargetType:   targetType,
		Status:       "ACTIVE",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	return tmpl
}

func TestCertificateRepository_serials(t *testing.T) {
	_, repo := prepareCertificates(t)
	ctx := context.Background()
	tmpl := createTemplate(t, repo, certificate.TargetEventParticipant)

	_, err := repo.GetSerial(ctx, 2025, tmpl.ID, tmpl.TargetType)
	assert.Equal(t, certificate.ErrSerialNotFound, errors.Cause(err))

	now := time.Now().UTC()
	s, err := repo.CreateSerial(ctx, certificate.Serial{
		Year: 2025, TemplateID: tmpl.ID, TargetType: tmpl.TargetType, TypeCode: "PART",
		LastSequence: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.LastSequence)

	// a second insert increments the existing row
	again, err := repo.CreateSerial(ctx, certificate.Serial{
		Year: 2025, TemplateID: tmpl.ID, TargetType: tmpl.TargetType, TypeCode: "PART",
		LastSequence: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
	assert.Equal(t, 2, again.LastSequence)

	require.NoError(t, repo.UpdateSequence(ctx, s.ID, 10))
	got, err := repo.GetSerial(ctx, 2025, tmpl.ID, tmpl.TargetType)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LastSequence)
	assert.Equal(t, "PART", got.TypeCode)

	assert.Equal(t, certificate.ErrSerialNotFound, errors.Cause(repo.UpdateSequence(ctx, s.ID+1000, 1)))

	serials, err := repo.TemplateSerials(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, serials, 1)
	assert.Equal(t, s.ID, serials[0].ID)
}

func TestCertificateService_GenerateSerialNumber_Postgres(t *testing.T) {
	db, repo := prepareCertificates(t)
	ctx := context.Background()
	svc := certificate.NewService(core.NewTestConfig(), db, repo)
	tmpl := createTemplate(t, repo, certificate.TargetGeneral)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		serials = make(map[string]bool, n)
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serial, err := svc.GenerateSerialNumber(ctx, tmpl.ID, tmpl.TargetType, 2025)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			serials[serial] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, serials, n)
	for i := 1; i <= n; i++ {
		want := fmt.Sprintf("MT25/GEN/T%d/%06d", tmpl.ID, i)
		assert.True(t, serials[want], "missing %s", want)
	}

	current, err := svc.CurrentSequence(ctx, tmpl.ID, tmpl.TargetType, 2025)
	require.NoError(t, err)
	assert.Equal(t, n, current)
}

func TestCertificateRepository_certificates(t *testing.T) {
	db, repo := prepareCertificates(t)
	ctx := context.Background()
	svc := certificate.NewService(core.NewTestConfig(), db, repo)
	tmpl := createTemplate(t, repo, certificate.TargetEventWinner)

	first, err := svc.CreateCertificate(ctx, tmpl.ID, certificate.NewCertificate{
		RecipientName: "Nur Aisyah", RecipientType: certificate.RecipientParticipant, AwardTitle: "Gold",
	}, "")
	require.NoError(t, err)
	second, err := svc.CreateCertificate(ctx, tmpl.ID, certificate.NewCertificate{
		RecipientName: "Hafiz Rahman", RecipientType: certificate.RecipientParticipant, AwardTitle: "Silver",
	}, "")
	require.NoError(t, err)
	assert.True(t, svc.ValidateSerialNumber(first.SerialNumber))
	assert.NotEqual(t, first.SerialNumber, second.SerialNumber)

	got, err := repo.GetCertificateBySerial(ctx, first.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, tmpl.TemplateName, got.TemplateName)
	assert.Equal(t, certificate.StatusDraft, got.Status)

	certs, total, err := repo.QueryCertificates(ctx, tmpl.ID, &certificate.QueryFilter{Search: "hafiz"}, core.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, certs, 1)
	assert.Equal(t, second.ID, certs[0].ID)

	require.NoError(t, repo.UpdateCertificateStatus(ctx, first.ID, certificate.StatusRevoked))
	certs, total, err = repo.QueryCertificates(ctx, tmpl.ID, &certificate.QueryFilter{Status: certificate.StatusRevoked}, core.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, certs[0].ID)

	require.NoError(t, repo.DeleteCertificate(ctx, second.ID))
	_, err = repo.GetCertificate(ctx, second.ID)
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(repo.DeleteCertificate(ctx, second.ID)))
}
