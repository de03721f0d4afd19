package payment

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
)

const (
	ModeLive = "LIVE"

	LiveGatewayURL = "https://secure.payu.in/_payment"
	TestGatewayURL = "https://test.payu.in/_payment"

	modeField = "payu_mode"
)

// Fields are the signed gateway parameters returned by /api/service-requests/{id}/pay/.
// The portal forwards them untouched; hashing and settlement belong to the backend.
type Fields map[string]string

// Field is one hidden input of the gateway form
type Field struct {
	Name  string
	Value string
}

// Form is a browser form that posts the fields to the hosted gateway
type Form struct {
	Action string
	Fields []Field
}

// GatewayURL selects the live gateway only for an explicit LIVE mode
func GatewayURL(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), ModeLive) {
		return LiveGatewayURL
	}
	return TestGatewayURL
}

// NewForm builds the gateway form. The mode returned by the backend wins over the portal's own.
func NewForm(fields Fields, defaultMode string) (*Form, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("[payment NewForm] no payment fields returned")
	}
	for _, required := range []string{"key", "txnid", "hash"} {
		if fields[required] == "" {
			return nil, fmt.Errorf("[payment NewForm] missing %q", required)
		}
	}

	mode := defaultMode
	if m, ok := fields[modeField]; ok && m != "" {
		mode = m
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	form := &Form{Action: GatewayURL(mode)}
	for _, name := range names {
		form.Fields = append(form.Fields, Field{Name: name, Value: fields[name]})
	}
	return form, nil
}

var autoSubmit = template.Must(template.New("payment").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<p>Redirecting to the payment gateway&hellip;</p>
<form method="POST" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>
`))

// Render writes a page that submits the form as soon as it loads
func (f *Form) Render(w io.Writer) error {
	return autoSubmit.Execute(w, f)
}
