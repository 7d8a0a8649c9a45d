// Package views renders the bot's replies.
//
// Every view is a pure function of its inputs and returns a models.BotResponse
// whose text uses a small markup subset: **bold**, `code` and [text](url).
// Transport adapters translate that markup to the platform's syntax.
package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// DateLayout is the day-first date format used in service details.
const DateLayout = "02/01/2006"

// SupportContact holds the contact channels shown by the support view.
type SupportContact struct {
	Phone string `mapstructure:"phone" yaml:"phone"`
	Email string `mapstructure:"email" yaml:"email"`
	Hours string `mapstructure:"hours" yaml:"hours"`
}

// DefaultSupportContact returns the XROM Systems support channels.
func DefaultSupportContact() SupportContact {
	return SupportContact{
		Phone: "+52 123 456 7890",
		Email: "duvallier@xromsystems.com",
		Hours: "Lunes a Sabado | 9:00 AM - 7:00 PM",
	}
}

// WhatsAppURL returns the wa.me link for the support phone number.
func (c SupportContact) WhatsAppURL() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, c.Phone)
	return "https://wa.me/" + digits
}

// Renderer produces the bot's views for a given vocabulary and contact set.
type Renderer struct {
	vocab   Vocabulary
	contact SupportContact
}

// NewRenderer creates a Renderer. Empty vocabulary labels and contact fields
// fall back to the defaults.
func NewRenderer(vocab Vocabulary, contact SupportContact) *Renderer {
	def := DefaultSupportContact()
	if contact.Phone == "" {
		contact.Phone = def.Phone
	}
	if contact.Email == "" {
		contact.Email = def.Email
	}
	if contact.Hours == "" {
		contact.Hours = def.Hours
	}
	return &Renderer{vocab: vocab.withDefaults(), contact: contact}
}

// Vocabulary returns the vocabulary the renderer labels its buttons with.
func (r *Renderer) Vocabulary() Vocabulary {
	return r.vocab
}

func (r *Renderer) withMainMenu(text string) models.BotResponse {
	return models.BotResponse{Text: text, Buttons: r.vocab.MainMenuButtons()}
}

func (r *Renderer) withBack(text string) models.BotResponse {
	return models.BotResponse{Text: text, Buttons: r.vocab.BackButtons()}
}

// Welcome is the main-menu greeting.
func (r *Renderer) Welcome() models.BotResponse {
	return r.withMainMenu(
		"¡Hola! 👋 Bienvenido a **XROM Systems** 🚀\n\n" +
			"Soy tu asistente virtual y estoy aquí para ayudarte a agilizar tus procesos. " +
			"¿En qué puedo apoyarte el día de hoy?")
}

// GenericError is shown when a turn could not be completed.
func (r *Renderer) GenericError() models.BotResponse {
	return r.withBack(
		"⚠️ **¡Ups! Algo salió mal.**\n\n" +
			"Lo lamento, ha ocurrido un error inesperado en nuestro sistema. ⚙️ " +
			"Por favor, intenta de nuevo en unos minutos o contacta directamente con nuestro " +
			"equipo de soporte si el problema persiste. 🛠️")
}

// InvalidOption is shown for unrecognized main-menu input.
func (r *Renderer) InvalidOption() models.BotResponse {
	return r.withMainMenu(
		"🧐 **Opción no reconocida**\n\n" +
			"Lo siento, no pude entender esa instrucción. Por favor, utiliza los " +
			"**botones del menú** que aparecen aquí abajo para poder guiarte correctamente. 👇")
}

// RequestFolio asks the user for a folio.
func (r *Renderer) RequestFolio() models.BotResponse {
	return r.withBack(
		"🔍 **Consulta de Servicio**\n\n" +
			"Por favor, **escribe el número de folio** que deseas consultar. " +
			"Lo buscaré de inmediato en nuestra base de datos. ⚡")
}

// FolioNotFound reports that no record exists for attempt.
func (r *Renderer) FolioNotFound(attempt string) models.BotResponse {
	return r.withBack(fmt.Sprintf(
		"❌ **Folio no encontrado**\n\n"+
			"Lo sentimos, no pudimos hallar ningún registro asociado al folio: `%s`. 🕵️‍♂️\n\n"+
			"Te recomendamos:\n"+
			"1️⃣ Verificar que el folio sea correcto.\n"+
			"2️⃣ Intentar escribirlo de nuevo.\n"+
			"3️⃣ Contactar a soporte técnico si crees que es un error.",
		inlineCode(attempt)))
}

// InvalidFolio reports that attempt contains no recognizable folio.
func (r *Renderer) InvalidFolio(attempt string) models.BotResponse {
	return r.withBack(fmt.Sprintf(
		"❌ **Folio no encontrado**\n\n"+
			"No encontré un folio válido en tu mensaje: `%s`. 🕵️‍♂️\n\n"+
			"Recuerda que el folio tiene la forma `XROM-12345`. "+
			"Escríbelo de nuevo o vuelve al menú principal.",
		inlineCode(attempt)))
}

// AIUnderConstruction is shown for the reserved AI assistant option.
func (r *Renderer) AIUnderConstruction() models.BotResponse {
	return r.withBack(
		"🤖 **Asistente IA**\n\n" +
			"Estamos construyendo esta función para ti. 🚧 " +
			"Muy pronto podrás resolver tus dudas conversando con nuestro asistente inteligente.")
}

// SupportContact lists the human support channels.
func (r *Renderer) SupportContact() models.BotResponse {
	c := r.contact
	return r.withBack(fmt.Sprintf(
		"👨‍💻 **Atención Personalizada XROM Systems**\n\n"+
			"¡Entiendo! Si necesitas asistencia técnica detallada o una solución a medida, "+
			"nuestro equipo de expertos está listo para escucharte. 🤝\n\n"+
			"Puedes contactarnos por estos medios:\n\n"+
			"📱 **WhatsApp:** [Clic aquí para chatear](%s)\n"+
			"📞 **Llamada:** `%s`\n"+
			"📧 **Correo:** `%s`\n\n"+
			"⏰ **Horario de atención:**\n"+
			"%s\n\n"+
			"Estamos a tus órdenes para resolver cualquier duda. 🚀",
		c.WhatsAppURL(), c.Phone, c.Email, c.Hours))
}

// StatusLabel returns the customer-facing label of a service status.
func StatusLabel(s models.ServiceStatus) string {
	switch s {
	case models.ServiceStatusPending:
		return "📥 Recibido"
	case models.ServiceStatusInProgress:
		return "🛠️ En proceso"
	case models.ServiceStatusOnHold:
		return "⏳ En espera"
	case models.ServiceStatusCompleted:
		return "✅ Terminado"
	case models.ServiceStatusCancelled:
		return "🚫 Cancelado"
	default:
		return string(s)
	}
}

// ServiceDetails renders a found service record.
func (r *Renderer) ServiceDetails(rec models.ServiceRecord) models.BotResponse {
	var b strings.Builder
	b.WriteString("📋 **Detalles del Servicio Encontrado**\n\n")
	fmt.Fprintf(&b, "🆔 **Folio:** `%s`\n", rec.Folio)
	fmt.Fprintf(&b, "📊 **Estado Actual:** %s\n", StatusLabel(rec.Status))
	fmt.Fprintf(&b, "📅 **Fecha de Recepción:** %s\n", formatDate(rec.ReceptionDate))
	fmt.Fprintf(&b, "🛠️ **Motivo del Servicio:** %s\n", rec.ServiceReason)

	if s := deref(rec.ServiceSummary); s != "" {
		fmt.Fprintf(&b, "📝 **Resumen:** %s\n", s)
	}
	if s := deref(rec.OnHoldReason); s != "" && rec.Status == models.ServiceStatusOnHold {
		fmt.Fprintf(&b, "⏸️ **Motivo de espera:** %s\n", s)
	}
	if s := deref(rec.CancellationReason); s != "" && rec.Status == models.ServiceStatusCancelled {
		fmt.Fprintf(&b, "❗ **Motivo de cancelación:** %s\n", s)
	}

	closing := "Pendiente"
	if rec.CompletionDate != nil {
		closing = formatDate(*rec.CompletionDate)
	}
	fmt.Fprintf(&b, "🏁 **Fecha de Entrega/Cierre:** %s\n", closing)

	if rec.IsDelivered {
		if rec.DeliveredAt != nil {
			fmt.Fprintf(&b, "📦 **Entregado:** %s\n", formatDate(*rec.DeliveredAt))
		} else {
			b.WriteString("📦 **Entregado:** Sí\n")
		}
	} else if rec.Status == models.ServiceStatusCompleted {
		b.WriteString("\nYa puedes pasar por tu equipo a la sucursal.\n")
	}

	b.WriteString("\n¿Deseas realizar otra consulta o volver al inicio?")
	return r.withMainMenu(b.String())
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(DateLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// inlineCode keeps user text from closing a code span early.
func inlineCode(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "`", "'")
}
