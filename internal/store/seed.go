package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/FolioPipe/internal/folio"
	"github.com/BTreeMap/FolioPipe/internal/models"
)

// SeedDateLayout is the date format accepted in seed files.
const SeedDateLayout = "2006-01-02"

// SeedService is one service entry of a seed file.
type SeedService struct {
	Folio              string `yaml:"folio" validate:"required,max=50"`
	Status             string `yaml:"status" validate:"required,oneof=PENDING IN_PROGRESS ON_HOLD COMPLETED CANCELLED"`
	ReceptionDate      string `yaml:"reception_date" validate:"required,datetime=2006-01-02"`
	ServiceReason      string `yaml:"service_reason" validate:"required,max=500"`
	ServiceSummary     string `yaml:"service_summary" validate:"omitempty,max=1000"`
	OnHoldReason       string `yaml:"on_hold_reason" validate:"omitempty,max=255"`
	CancellationReason string `yaml:"cancellation_reason" validate:"omitempty,max=255"`
	CompletionDate     string `yaml:"completion_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveredAt        string `yaml:"delivered_at" validate:"omitempty,datetime=2006-01-02"`
	IsDelivered        bool   `yaml:"is_delivered"`
}

// SeedFile is the top-level document of a seed file.
type SeedFile struct {
	Services []SeedService `yaml:"services" validate:"required,min=1,dive"`
}

// ServiceWriter stores service records.
type ServiceWriter interface {
	Upsert(ctx context.Context, rec models.ServiceRecord) error
}

// LoadSeedFile reads and validates a YAML seed file.
func LoadSeedFile(path string) ([]models.ServiceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes and validates seed YAML into service records. Folios are
// canonicalized with the folio extractor, so "xrom 123" is stored as "XROM-123".
func ParseSeed(r io.Reader) ([]models.ServiceRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	var doc SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode seed YAML: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("invalid seed: %s", strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	records := make([]models.ServiceRecord, 0, len(doc.Services))
	for i, s := range doc.Services {
		rec, err := s.record()
		if err != nil {
			return nil, fmt.Errorf("seed service %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s SeedService) record() (models.ServiceRecord, error) {
	canonical, ok := folio.Extract(s.Folio)
	if !ok {
		return models.ServiceRecord{}, fmt.Errorf("%w: %q", models.ErrInvalidFolio, s.Folio)
	}
	received, err := time.Parse(SeedDateLayout, s.ReceptionDate)
	if err != nil {
		return models.ServiceRecord{}, err
	}
	rec := models.ServiceRecord{
		Folio:              canonical,
		Status:             models.ServiceStatus(s.Status),
		ReceptionDate:      received,
		ServiceReason:      s.ServiceReason,
		ServiceSummary:     optional(s.ServiceSummary),
		OnHoldReason:       optional(s.OnHoldReason),
		CancellationReason: optional(s.CancellationReason),
		IsDelivered:        s.IsDelivered,
	}
	if rec.CompletionDate, err = optionalDate(s.CompletionDate); err != nil {
		return models.ServiceRecord{}, err
	}
	if rec.DeliveredAt, err = optionalDate(s.DeliveredAt); err != nil {
		return models.ServiceRecord{}, err
	}
	if err := rec.Validate(folio.IsCanonical); err != nil {
		return models.ServiceRecord{}, err
	}
	return rec, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(SeedDateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DemoRecords returns the demonstration services used when no seed file is given.
func DemoRecords(now time.Time) []models.ServiceRecord {
	received := now.AddDate(0, 0, -2).Truncate(24 * time.Hour)
	return []models.ServiceRecord{
		{
			Folio:          "XROM-12345",
			Status:         models.ServiceStatusPending,
			ReceptionDate:  received,
			ServiceReason:  "Mantenimiento preventivo laptop gaming",
			ServiceSummary: optional("Limpieza interna y cambio de pasta térmica."),
		},
		{
			Folio:          "XROM-ABCDE",
			Status:         models.ServiceStatusInProgress,
			ReceptionDate:  received,
			ServiceReason:  "Mantenimiento de Hardware",
			ServiceSummary: optional("Revisión de voltajes en fuente de poder."),
		},
		{
			Folio:          "XROM-999",
			Status:         models.ServiceStatusCompleted,
			ReceptionDate:  received,
			ServiceReason:  "Instalación de Software",
			ServiceSummary: optional("Se instaló suite de diseño y drivers actualizados."),
			CompletionDate: &now,
		},
	}
}

// Seed writes records through w and returns how many were written.
func Seed(ctx context.Context, w ServiceWriter, records []models.ServiceRecord) (int, error) {
	for i, rec := range records {
		if err := w.Upsert(ctx, rec); err != nil {
			return i, err
		}
	}
	return len(records), nil
}
