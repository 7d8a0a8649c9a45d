package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

func newTestRenderer() *Renderer {
	return NewRenderer(DefaultVocabulary(), DefaultSupportContact())
}

func TestButtonSets(t *testing.T) {
	r := newTestRenderer()
	main := []string{DefaultConsultLabel, DefaultAILabel, DefaultSupportLabel}
	back := []string{DefaultBackLabel}

	tests := []struct {
		name string
		resp models.BotResponse
		want []string
	}{
		{"welcome", r.Welcome(), main},
		{"invalid option", r.InvalidOption(), main},
		{"service details", r.ServiceDetails(models.ServiceRecord{Folio: "XROM-1", Status: models.ServiceStatusPending}), main},
		{"generic error", r.GenericError(), back},
		{"request folio", r.RequestFolio(), back},
		{"folio not found", r.FolioNotFound("XROM-00000"), back},
		{"invalid folio", r.InvalidFolio("no recuerdo"), back},
		{"support", r.SupportContact(), back},
		{"ai", r.AIUnderConstruction(), back},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.resp.Text)
			assert.Equal(t, tt.want, tt.resp.Buttons)
		})
	}
}

func TestFolioNotFoundEchoesAttempt(t *testing.T) {
	r := newTestRenderer()
	assert.Contains(t, r.FolioNotFound("XROM-00000").Text, "`XROM-00000`")
	assert.Contains(t, r.InvalidFolio("  no recuerdo ").Text, "`no recuerdo`")
	assert.Contains(t, r.InvalidFolio("a`b").Text, "`a'b`")
}

func TestSupportContact(t *testing.T) {
	r := newTestRenderer()
	text := r.SupportContact().Text
	assert.Contains(t, text, "https://wa.me/521234567890")
	assert.Contains(t, text, "+52 123 456 7890")
	assert.Contains(t, text, "duvallier@xromsystems.com")
	assert.Contains(t, text, "Lunes a Sabado | 9:00 AM - 7:00 PM")
}

func TestServiceDetailsCompleted(t *testing.T) {
	r := newTestRenderer()
	done := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	summary := "Se instaló paquetería de oficina."
	rec := models.ServiceRecord{
		Folio:          "XROM-12345",
		Status:         models.ServiceStatusCompleted,
		ReceptionDate:  time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		ServiceReason:  "Instalación de Software",
		ServiceSummary: &summary,
		CompletionDate: &done,
	}

	text := r.ServiceDetails(rec).Text
	assert.Contains(t, text, "`XROM-12345`")
	assert.Contains(t, text, "✅ Terminado")
	assert.Contains(t, text, "01/08/2024")
	assert.Contains(t, text, "15/08/2024")
	assert.Contains(t, text, summary)
	assert.Contains(t, text, "Ya puedes pasar por tu equipo a la sucursal.")
}

func TestServiceDetailsConditionalLines(t *testing.T) {
	r := newTestRenderer()
	hold := "Esperando refacción"
	cancel := "Cliente desistió"
	delivered := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

	onHold := r.ServiceDetails(models.ServiceRecord{
		Folio: "XROM-H1", Status: models.ServiceStatusOnHold, ServiceReason: "x",
		OnHoldReason: &hold, CancellationReason: &cancel,
	}).Text
	assert.Contains(t, onHold, hold)
	assert.NotContains(t, onHold, cancel)
	assert.Contains(t, onHold, "Pendiente")

	cancelled := r.ServiceDetails(models.ServiceRecord{
		Folio: "XROM-C1", Status: models.ServiceStatusCancelled, ServiceReason: "x",
		CancellationReason: &cancel, IsDelivered: true, DeliveredAt: &delivered,
	}).Text
	assert.Contains(t, cancelled, cancel)
	assert.Contains(t, cancelled, "02/09/2024")
	assert.NotContains(t, cancelled, "sucursal")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "📥 Recibido", StatusLabel(models.ServiceStatusPending))
	assert.Equal(t, "🛠️ En proceso", StatusLabel(models.ServiceStatusInProgress))
	assert.Equal(t, "⏳ En espera", StatusLabel(models.ServiceStatusOnHold))
	assert.Equal(t, "✅ Terminado", StatusLabel(models.ServiceStatusCompleted))
	assert.Equal(t, "🚫 Cancelado", StatusLabel(models.ServiceStatusCancelled))
	assert.Equal(t, "LOST", StatusLabel("LOST"))
}

func TestNewRendererFillsDefaults(t *testing.T) {
	r := NewRenderer(Vocabulary{ConsultLabel: "Check"}, SupportContact{})
	assert.Equal(t, []string{"Check", DefaultAILabel, DefaultSupportLabel}, r.Welcome().Buttons)
	assert.Contains(t, r.SupportContact().Text, DefaultSupportContact().Email)
}
