package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReceipt(t *testing.T) {
	html, err := Render("receipt", map[string]string{
		"FirstName":     "Amina",
		"ServiceName":   "Water Bill",
		"TransactionID": "TRX-1",
		"Currency":      "KES",
		"Amount":        "220.00",
		"Fee":           "50.00",
		"Total":         "270.00",
		"Date":          "2026-05-04",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Water Bill")
	assert.Contains(t, html, "KES 270.00")
	assert.Contains(t, html, "TRX-1")
}

func TestResendPostsMessage(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	p := NewResend(ResendConfig{APIKey: "re_test", URL: srv.URL, From: "receipts@county.go.ke"}, srv.Client())
	err := p.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "Your Receipt", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "Your Receipt", got.Subject)
	assert.Equal(t, []string{"a@example.com"}, got.To)
}

func TestResendSurfacesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	p := NewResend(ResendConfig{APIKey: "re_test", URL: srv.URL}, srv.Client())
	err := p.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestSMTPBuildsMessage(t *testing.T) {
	p := NewSMTP(SMTPConfig{Host: "mail.local", Port: 25, From: "receipts@county.go.ke"})
	var sent []byte
	var addr string
	p.send = func(a string, _ smtp.Auth, from string, to []string, msg []byte) error {
		addr = a
		sent = msg
		return nil
	}

	require.NoError(t, p.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "Your Receipt", HTML: "<b>x</b>"}))
	assert.Equal(t, "mail.local:25", addr)
	assert.True(t, strings.Contains(string(sent), "Subject: Your Receipt\r\n"))
	assert.True(t, strings.HasSuffix(string(sent), "<b>x</b>"))

	assert.ErrorIs(t, p.Send(context.Background(), Message{}), ErrNoRecipients)
}
