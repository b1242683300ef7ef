package email

import (
	"testing"

	"github.com/hourwatch/hourwatch/internal/config"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"plain address", "raj@co.com", false},
		{"subaddressed", "raj+alerts@co.com", false},
		{"missing at", "not-an-email", true},
		{"empty", "", true},
		{"crlf injection", "raj@co.com\r\nBcc: evil@x.com", true},
		{"comma list", "a@co.com,b@co.com", true},
		{"semicolon", "a@co.com;b@co.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageRejectsSubjectInjection(t *testing.T) {
	msg := Message{
		To:      "raj@co.com",
		From:    "hr@co.com",
		Subject: "Alert\r\nBcc: evil@x.com",
		Body:    "body",
	}
	if err := validateMessage(msg); err == nil {
		t.Fatal("expected error for CRLF in subject")
	}
}

func TestNewSender(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantName string
		wantErr  bool
	}{
		{"default is smtp", "", "smtp", false},
		{"smtp", "smtp", "smtp", false},
		{"sendgrid", "sendgrid", "sendgrid", false},
		{"resend", "resend", "resend", false},
		{"unknown", "carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.EmailConfig{
				Provider:       tt.provider,
				From:           "hr@co.com",
				SendGridAPIKey: "sg-key",
				ResendAPIKey:   "re-key",
			}
			sender, err := NewSender(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSender: %v", err)
			}
			if sender.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", sender.Name(), tt.wantName)
			}
		})
	}
}
