package authority

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/facturia/facturia/internal/shared"
)

// CodeSequenceMismatch is the authority error for a voucher number that is not
// the next one in its sequence.
const CodeSequenceMismatch = 10016

// Authority verdicts.
const (
	ResultApproved = "A"
	ResultRejected = "R"
	ResultPartial  = "P"
)

// soapFaultMessage is shown to users when the authority answers with a fault
// instead of a verdict. In practice this is a bad date or amount.
const soapFaultMessage = "Rechazo de AFIP: Revisa fechas o montos."

// Message is an error or observation reported by the authority.
type Message struct {
	Code int    `json:"Code"`
	Msg  string `json:"Msg"`
}

func (m Message) String() string {
	return fmt.Sprintf("%d: %s", m.Code, m.Msg)
}

type voucherResponse struct {
	Resultado     string    `json:"Resultado"`
	CAE           string    `json:"CAE"`
	CAEFchVto     string    `json:"CAEFchVto"`
	CbteDesde     int64     `json:"CbteDesde"`
	Observaciones []Message `json:"Observaciones,omitempty"`
	Errors        []Message `json:"Errors,omitempty"`
}

func (r voucherResponse) authorization(requested int64) (Authorization, error) {
	messages := append(append([]Message(nil), r.Errors...), r.Observaciones...)
	if r.Resultado != ResultApproved || r.CAE == "" {
		if len(messages) == 0 {
			return Authorization{}, fmt.Errorf("%w: voucher not approved (result %q)", shared.ErrAuthorityFault, r.Resultado)
		}
		return Authorization{}, faultFromMessages(messages)
	}
	// An approved voucher stands even without a readable expiry.
	expiry, _ := parseExpiry(r.CAEFchVto)
	number := r.CbteDesde
	if number == 0 {
		number = requested
	}
	return Authorization{Code: r.CAE, Expiry: expiry, VoucherNumber: number, Observations: r.Observaciones}, nil
}

type gatewayError struct {
	Message       string    `json:"message"`
	Errors        []Message `json:"Errors"`
	Observaciones []Message `json:"Observaciones"`
}

func faultFromStatus(status int, raw []byte) error {
	if isSOAPFault(raw) {
		return soapFault(raw)
	}

	var body gatewayError
	_ = json.Unmarshal(raw, &body)
	messages := append(append([]Message(nil), body.Errors...), body.Observaciones...)

	switch {
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", shared.ErrSequenceConflict, describe(messages, body.Message, "voucher number already used"))
	case status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: authority unavailable (status %d)", shared.ErrTransport, status)
	case len(messages) > 0:
		return faultFromMessages(messages)
	}
	return fmt.Errorf("%w: %s", shared.ErrAuthorityFault, describe(nil, body.Message, fmt.Sprintf("gateway returned status %d", status)))
}

func faultFromMessages(messages []Message) error {
	for _, m := range messages {
		if m.Code == CodeSequenceMismatch {
			return fmt.Errorf("%w: %s", shared.ErrSequenceConflict, m)
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrAuthorityFault, describe(messages, "", "voucher rejected"))
}

func describe(messages []Message, message, fallback string) string {
	parts := make([]string, 0, len(messages)+1)
	if message != "" {
		parts = append(parts, message)
	}
	for _, m := range messages {
		parts = append(parts, m.String())
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "; ")
}

type soapEnvelope struct {
	FaultCode   string `xml:"Body>Fault>faultcode"`
	FaultString string `xml:"Body>Fault>faultstring"`
}

func isSOAPFault(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '<' && bytes.Contains(trimmed, []byte("Fault"))
}

func soapFault(raw []byte) error {
	var env soapEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil || env.FaultString == "" {
		return fmt.Errorf("%w: %s", shared.ErrAuthorityFault, soapFaultMessage)
	}
	return fmt.Errorf("%w: %s (%s)", shared.ErrAuthorityFault, soapFaultMessage, strings.TrimSpace(env.FaultString))
}

func transportError(err error) error {
	return fmt.Errorf("%w: %v", shared.ErrTransport, err)
}
