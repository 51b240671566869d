package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/equicare/equicare-platform/internal/apperr"
)

func TestStripeCreateTransferableIntent(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Stripe-Version")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","status":"requires_payment_method","client_secret":"pi_123_secret","amount":12000,"currency":"eur"}`))
	}))
	defer srv.Close()

	proc := NewStripeProcessor("sk_test_abc", testLogger()).WithBaseURL(srv.URL)
	intent, err := proc.CreateTransferableIntent(context.Background(), IntentParams{
		AmountCents:          12000,
		Currency:             "eur",
		DestinationAccountID: "acct_pro_1",
		ApplicationFeeCents:  99,
		CustomerRef:          "10",
		Metadata:             map[string]string{"appointment_id": "42"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("intent = %+v", intent)
	}
	if gotPath != "/v1/payment_intents" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotAuth != "Bearer sk_test_abc" {
		t.Fatalf("auth = %s", gotAuth)
	}
	if gotVersion == "" {
		t.Fatal("missing Stripe-Version header")
	}
	checks := map[string]string{
		"amount":                      "12000",
		"currency":                    "eur",
		"transfer_data[destination]":  "acct_pro_1",
		"application_fee_amount":      "99",
		"customer":                    "10",
		"metadata[appointment_id]":    "42",
		"automatic_payment_methods[enabled]": "true",
	}
	for key, want := range checks {
		vals, ok := gotForm[key]
		if !ok || vals[0] != want {
			t.Fatalf("form[%s] = %v, want %s", key, vals, want)
		}
	}
}

func TestStripeOmitsTransferFieldsOnDirectRoute(t *testing.T) {
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm
		w.Write([]byte(`{"id":"pi_direct","status":"requires_payment_method","client_secret":"s"}`))
	}))
	defer srv.Close()

	proc := NewStripeProcessor("sk_test_abc", testLogger()).WithBaseURL(srv.URL)
	if _, err := proc.CreateTransferableIntent(context.Background(), IntentParams{
		AmountCents: 5000,
		Currency:    "eur",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := gotForm["transfer_data[destination]"]; ok {
		t.Fatal("direct route must not carry a destination transfer")
	}
	if _, ok := gotForm["application_fee_amount"]; ok {
		t.Fatal("direct route must not carry an application fee")
	}
}

func TestStripeAPIErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"Your card was declined.","type":"card_error","code":"card_declined"}}`))
	}))
	defer srv.Close()

	proc := NewStripeProcessor("sk_test_abc", testLogger()).WithBaseURL(srv.URL)
	_, err := proc.CreateTransferableIntent(context.Background(), IntentParams{AmountCents: 5000, Currency: "eur"})
	if apperr.KindOf(err) != apperr.KindUpstreamPayment {
		t.Fatalf("err = %v, want upstream payment", err)
	}
	if !strings.Contains(err.Error(), "declined") {
		t.Fatalf("err = %v, want declined message surfaced", err)
	}
}

func TestStripeRejectsNonPositiveAmount(t *testing.T) {
	proc := NewStripeProcessor("sk_test_abc", testLogger())
	_, err := proc.CreateTransferableIntent(context.Background(), IntentParams{AmountCents: 0, Currency: "eur"})
	if apperr.KindOf(err) != apperr.KindInvalidAmount {
		t.Fatalf("err = %v, want invalid amount", err)
	}
}

func TestStripeDryRun(t *testing.T) {
	proc := NewStripeProcessor("sk_test_abc", testLogger()).WithDryRun(true)
	intent, err := proc.CreateTransferableIntent(context.Background(), IntentParams{AmountCents: 5000, Currency: "eur"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(intent.ID, "pi_dryrun_") {
		t.Fatalf("id = %s, want dry-run prefix", intent.ID)
	}
	if intent.ClientSecret == "" {
		t.Fatal("dry run must still return a client secret")
	}

	got, err := proc.RetrieveIntent(context.Background(), intent.ID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got.ID != intent.ID {
		t.Fatalf("retrieved id = %s, want %s", got.ID, intent.ID)
	}
}

func TestStripeRetrieveIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payment_intents/pi_123" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"pi_123","status":"succeeded","amount":12000,"currency":"eur"}`))
	}))
	defer srv.Close()

	proc := NewStripeProcessor("sk_test_abc", testLogger()).WithBaseURL(srv.URL)
	intent, err := proc.RetrieveIntent(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if intent.Status != IntentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", intent.Status)
	}
}
