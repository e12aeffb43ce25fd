package extractor

import (
	"fmt"
	"strings"
	"time"

	"github.com/facturia/facturia/internal/invoice"
)

// Prompt is one extraction request for a Generator.
type Prompt struct {
	System string
	Text   string
}

func quoted[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%q", string(v))
	}
	return strings.Join(parts, ", ")
}

// systemInstruction tells the model the business defaults and the local
// date and time so it can resolve relative references such as "mañana".
func systemInstruction(now time.Time) string {
	var b strings.Builder
	b.WriteString("You are an expert accountant assistant for the Argentine tax system (ARCA/AFIP).\n")
	fmt.Fprintf(&b, "Current date context: %s (DD/MM/YYYY), %s.\n", now.Format("02/01/2006"), spanishWeekday(now.Weekday()))
	fmt.Fprintf(&b, "Current time context: %s.\n\n", now.Format("15:04"))
	b.WriteString("Extract invoice details from natural language text or voice transcripts.\n\n")
	b.WriteString("Defaults when the text does not say otherwise:\n")
	fmt.Fprintf(&b, "- type: %s\n", invoice.DefaultVoucherType)
	fmt.Fprintf(&b, "- concept: %s\n", invoice.DefaultConcept)
	fmt.Fprintf(&b, "- paymentCondition: %s\n", invoice.DefaultPaymentCondition)
	fmt.Fprintf(&b, "- posNumber: %d\n\n", invoice.DefaultPointOfSale)
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- type must be one of %s.\n", quoted(invoice.VoucherTypes))
	fmt.Fprintf(&b, "- concept must be one of %s.\n", quoted(invoice.Concepts))
	fmt.Fprintf(&b, "- paymentCondition must be one of %s.\n", quoted(invoice.PaymentConditions))
	b.WriteString("- date and scheduledFor use YYYY-MM-DD; time uses HH:MM (24h).\n")
	b.WriteString("- Resolve relative dates (hoy, ayer, mañana) against the current date context.\n")
	b.WriteString("- If the text mentions no date, return null for date. If it mentions no time, return null for time. Never invent them.\n")
	b.WriteString("- scheduledFor is only set when the user asks to issue the invoice later.\n")
	b.WriteString("- Each item has name, quantity and unitPrice. quantity is positive, unitPrice is the price of one unit.\n")
	b.WriteString("- name is a short keyword for the product or service, without quantities, units or containers (\"2 litros de lavandina\" is \"Lavandina\").\n")
	return b.String()
}

// jsonContract spells out the response shape for backends without schema support.
func jsonContract() string {
	return `Respond only with a JSON object with exactly these fields:
{"posNumber": number, "type": string, "concept": string, "paymentCondition": string,
 "date": string|null, "time": string|null, "scheduledFor": string|null,
 "items": [{"name": string, "quantity": number, "unitPrice": number}]}`
}

func spanishWeekday(d time.Weekday) string {
	return [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}[d]
}
