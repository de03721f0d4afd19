package payment_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-security-portal/payment"
	"github.com/stretchr/testify/require"
)

func TestGatewayURL(t *testing.T) {
	require.Equal(t, payment.LiveGatewayURL, payment.GatewayURL("LIVE"))
	require.Equal(t, payment.LiveGatewayURL, payment.GatewayURL(" live "))
	require.Equal(t, payment.TestGatewayURL, payment.GatewayURL("TEST"))
	require.Equal(t, payment.TestGatewayURL, payment.GatewayURL(""))
}

func TestNewForm(t *testing.T) {
	fields := payment.Fields{
		"key":         "merchant",
		"txnid":       "abc123",
		"hash":        "deadbeef",
		"amount":      "499.00",
		"productinfo": `Pentest "web"`,
	}

	t.Run("portal mode", func(t *testing.T) {
		form, err := payment.NewForm(fields, "TEST")
		require.NoError(t, err)
		require.Equal(t, payment.TestGatewayURL, form.Action)
		require.Equal(t, "amount", form.Fields[0].Name)
	})

	t.Run("backend mode wins", func(t *testing.T) {
		live := payment.Fields{"payu_mode": "LIVE"}
		for k, v := range fields {
			live[k] = v
		}
		form, err := payment.NewForm(live, "TEST")
		require.NoError(t, err)
		require.Equal(t, payment.LiveGatewayURL, form.Action)
	})

	t.Run("missing hash", func(t *testing.T) {
		_, err := payment.NewForm(payment.Fields{"key": "k", "txnid": "t"}, "TEST")
		require.Error(t, err)
	})

	t.Run("render escapes values", func(t *testing.T) {
		form, err := payment.NewForm(fields, "TEST")
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, form.Render(&buf))
		html := buf.String()
		require.Contains(t, html, `action="https://test.payu.in/_payment"`)
		require.Contains(t, html, `name="txnid" value="abc123"`)
		require.Contains(t, html, `Pentest &#34;web&#34;`)
		require.Contains(t, html, "document.forms[0].submit()")
	})
}
