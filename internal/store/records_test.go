package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

func openTestRepo(t *testing.T) *GormServiceRepository {
	t.Helper()
	repo, err := OpenServiceRepository(filepath.Join(t.TempDir(), "records", "services.db"))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGormServiceRepository(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	got, err := repo.FindByFolio(ctx, "XROM-12345")
	require.NoError(t, err)
	assert.Nil(t, got)

	done := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	summary := "Se instaló suite de diseño."
	rec := models.ServiceRecord{
		Folio:          "XROM-12345",
		Status:         models.ServiceStatusCompleted,
		ReceptionDate:  time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		ServiceReason:  "Instalación de Software",
		ServiceSummary: &summary,
		CompletionDate: &done,
	}
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err = repo.FindByFolio(ctx, "XROM-12345")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Folio, got.Folio)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.ServiceReason, got.ServiceReason)
	require.NotNil(t, got.ServiceSummary)
	assert.Equal(t, summary, *got.ServiceSummary)
	require.NotNil(t, got.CompletionDate)
	assert.True(t, done.Equal(*got.CompletionDate))
	assert.Nil(t, got.DeliveredAt)

	// Upsert replaces by folio.
	rec.IsDelivered = true
	rec.DeliveredAt = &done
	require.NoError(t, repo.Upsert(ctx, rec))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = repo.FindByFolio(ctx, "XROM-12345")
	require.NoError(t, err)
	assert.True(t, got.IsDelivered)
}

func TestGormServiceRepositoryCanceledContext(t *testing.T) {
	repo := openTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.FindByFolio(ctx, "XROM-1")
	assert.Error(t, err)
}

func TestOpenServiceRepositoryRequiresDSN(t *testing.T) {
	_, err := OpenServiceRepository("")
	assert.Error(t, err)
}

func TestInMemoryServiceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryServiceRepository(DemoRecords(time.Now())...)

	got, err := repo.FindByFolio(ctx, "XROM-ABCDE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ServiceStatusInProgress, got.Status)

	got, err = repo.FindByFolio(ctx, "XROM-00000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

const seedYAML = `
services:
  - folio: "xrom 777"
    status: ON_HOLD
    reception_date: "2024-09-01"
    service_reason: "Cambio de pantalla"
    on_hold_reason: "Esperando refacción"
  - folio: XROM-C1
    status: CANCELLED
    reception_date: "2024-09-02"
    service_reason: "Diagnóstico"
    cancellation_reason: "Cliente desistió"
    is_delivered: true
    delivered_at: "2024-09-05"
`

func TestParseSeed(t *testing.T) {
	records, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "XROM-777", records[0].Folio)
	assert.Equal(t, models.ServiceStatusOnHold, records[0].Status)
	require.NotNil(t, records[0].OnHoldReason)
	assert.Nil(t, records[0].CompletionDate)

	assert.True(t, records[1].IsDelivered)
	require.NotNil(t, records[1].DeliveredAt)
	assert.Equal(t, 5, records[1].DeliveredAt.Day())
}

func TestParseSeedRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "services: []"},
		{"bad status", "services:\n  - {folio: XROM-1, status: LOST, reception_date: 2024-01-01, service_reason: x}"},
		{"bad date", "services:\n  - {folio: XROM-1, status: PENDING, reception_date: 01/01/2024, service_reason: x}"},
		{"missing reason", "services:\n  - {folio: XROM-1, status: PENDING, reception_date: 2024-01-01}"},
		{"bad folio", "services:\n  - {folio: ABC, status: PENDING, reception_date: 2024-01-01, service_reason: x}"},
		{"delivered while pending", "services:\n  - {folio: XROM-1, status: PENDING, reception_date: 2024-01-01, service_reason: x, is_delivered: true}"},
		{"unknown field", "services:\n  - {folio: XROM-1, status: PENDING, reception_date: 2024-01-01, service_reason: x, color: red}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSeedIntoRepository(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	n, err := Seed(ctx, repo, DemoRecords(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Seeding twice is idempotent.
	_, err = Seed(ctx, repo, DemoRecords(time.Now()))
	require.NoError(t, err)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestDemoRecordsAreValid(t *testing.T) {
	for _, rec := range DemoRecords(time.Now()) {
		assert.NoError(t, rec.Validate(func(s string) bool { return strings.HasPrefix(s, "XROM-") }), rec.Folio)
	}
}
