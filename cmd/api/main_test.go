package main

import (
	"context"
	"testing"

	appconfig "github.com/equicare/equicare-platform/internal/config"
	"github.com/equicare/equicare-platform/internal/notify"
	"github.com/equicare/equicare-platform/pkg/logging"
)

func TestBuildEmailSenderDefaultsToStub(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{EmailProvider: "sendgrid"}

	sender := buildEmailSender(context.Background(), cfg, logger)
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender without credentials, got %T", sender)
	}
}

func TestBuildEmailSenderSendGrid(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		EmailProvider:     "sendgrid",
		SendGridAPIKey:    "SG.test",
		SendGridFromEmail: "noreply@equicare.example",
	}

	sender := buildEmailSender(context.Background(), cfg, logger)
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender, got %T", sender)
	}
}

func TestBuildEmailSenderSESMissingFromAddress(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{EmailProvider: "ses", AWSRegion: "eu-west-1"}
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	sender := buildEmailSender(context.Background(), cfg, logger)
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender when SES from address is unset, got %T", sender)
	}
}
