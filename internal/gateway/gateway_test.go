package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClientCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key-id" || pass != "key-secret" {
			t.Error("Expected basic auth with configured credentials")
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["amount"] != "1234.50" || body["currency"] != "INR" {
			t.Errorf("Unexpected body: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "order_abc"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-id", "key-secret", 5*time.Second)

	ref, err := client.CreateOrder(context.Background(), decimal.NewFromFloat(1234.5), "INR", "ORD-1")
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	if ref != "order_abc" {
		t.Errorf("Expected order_abc, got %q", ref)
	}
}

func TestClientRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/payments/pay_1/refund") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "rfnd_xyz"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-id", "key-secret", 5*time.Second)

	ref, err := client.Refund(context.Background(), "pay_1", decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if ref != "rfnd_xyz" {
		t.Errorf("Expected rfnd_xyz, got %q", ref)
	}
}

func TestClientErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "amount exceeds captured amount"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-id", "key-secret", 5*time.Second)

	_, err := client.Refund(context.Background(), "pay_1", decimal.NewFromInt(300))
	if err == nil {
		t.Fatal("Expected an error")
	}

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("Expected gateway error, got: %v", err)
	}
	if gwErr.Op != "refund" {
		t.Errorf("Expected op refund, got %q", gwErr.Op)
	}
	if !strings.Contains(err.Error(), "amount exceeds captured amount") {
		t.Errorf("Expected API error message, got: %v", err)
	}
}

func TestClientBreakerOpensOnRepeatedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-id", "key-secret", 5*time.Second)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		client.Capture(ctx, "pay_1", decimal.NewFromInt(100))
	}

	err := client.Capture(ctx, "pay_1", decimal.NewFromInt(100))
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("Expected circuit breaker open, got: %v", err)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"gateway_order_ref":"order_1"}`)

	client := NewClient("http://localhost", "key-id", "key-secret", time.Second)
	signature := signHMAC("key-secret", payload)

	if !client.VerifySignature(payload, signature) {
		t.Error("Valid signature should verify")
	}
	if client.VerifySignature(payload, "deadbeef") {
		t.Error("Invalid signature should not verify")
	}
	if client.VerifySignature([]byte(`tampered`), signature) {
		t.Error("Tampered payload should not verify")
	}
}

func TestSandbox(t *testing.T) {
	sandbox := NewSandbox("sandbox-secret")
	ctx := context.Background()

	orderRef, err := sandbox.CreateOrder(ctx, decimal.NewFromInt(100), "INR", "ORD-1")
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	if !strings.HasPrefix(orderRef, "order_") {
		t.Errorf("Expected order_ prefix, got %q", orderRef)
	}

	if err := sandbox.Capture(ctx, "pay_1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	refundRef, err := sandbox.Refund(ctx, "pay_1", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !strings.HasPrefix(refundRef, "rfnd_") {
		t.Errorf("Expected rfnd_ prefix, got %q", refundRef)
	}

	payload := []byte(`{"event":"captured"}`)
	if !sandbox.VerifySignature(payload, sandbox.Sign(payload)) {
		t.Error("Sandbox signature should verify")
	}

	sandbox.FailRefunds(true)
	if _, err := sandbox.Refund(ctx, "pay_1", decimal.NewFromInt(50)); err == nil {
		t.Error("Expected refund failure when toggled")
	}

	sandbox.FailCaptures(true)
	if err := sandbox.Capture(ctx, "pay_1", decimal.NewFromInt(100)); err == nil {
		t.Error("Expected capture failure when toggled")
	}
}
