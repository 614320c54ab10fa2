package services

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMpesaService(t *testing.T, baseURL string) *MpesaService {
	t.Helper()
	t.Setenv("MPESA_BUSINESS_SHORTCODE", "174379")
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_PASSKEY", "passkey")
	t.Setenv("MPESA_CALLBACK_URL", "https://example.com")
	t.Setenv("MPESA_BASE_URL", baseURL)

	service, err := NewMpesaService()
	require.NoError(t, err)
	return service
}

func TestMpesaGeneratePassword(t *testing.T) {
	service := newTestMpesaService(t, "https://unused.invalid")

	at := time.Date(2026, 8, 31, 14, 30, 5, 0, time.UTC)
	password, timestamp := service.generatePassword(at)

	assert.Equal(t, "20260831143005", timestamp)
	decoded, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20260831143005", string(decoded))
}

func TestMpesaEligiblePhone(t *testing.T) {
	service := newTestMpesaService(t, "https://unused.invalid")

	assert.True(t, service.EligiblePhone("254712345678"))
	assert.False(t, service.EligiblePhone("14155550100"))
	assert.False(t, service.EligiblePhone(""))
}

func TestMpesaInitiateSuccessAndTokenCaching(t *testing.T) {
	var authCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			authCalls.Add(1)
			w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
		case "/mpesa/stkpush/v1/processrequest":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.Write([]byte(`{"MerchantRequestID":"mr1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	service := newTestMpesaService(t, server.URL)

	request, err := service.Initiate("254712345678", 100000, "APPT_X")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", request.CheckoutRequestID)
	assert.Equal(t, "APPT_X", request.Reference)
	assert.True(t, request.PromptSent)

	// Second push reuses the cached token.
	_, err = service.Initiate("254712345678", 100000, "APPT_Y")
	require.NoError(t, err)
	assert.Equal(t, int32(1), authCalls.Load())
}

func TestMpesaInitiateProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
			return
		}
		w.Write([]byte(`{"ResponseCode":"1032","ResponseDescription":"Request cancelled by user"}`))
	}))
	defer server.Close()

	service := newTestMpesaService(t, server.URL)

	_, err := service.Initiate("254712345678", 100000, "APPT_Z")
	require.Error(t, err)
	var paymentErr *PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, PaymentErrProviderRejected, paymentErr.Kind)
}

func TestMpesaInitiateCredentialError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	service := newTestMpesaService(t, server.URL)

	_, err := service.Initiate("254712345678", 100000, "APPT_Z")
	var paymentErr *PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, PaymentErrCredential, paymentErr.Kind)
}

func TestMpesaInitiateTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	}))
	service := newTestMpesaService(t, server.URL)
	// Token fetch succeeds, then the server goes away before the push.
	_, err := service.accessToken()
	require.NoError(t, err)
	server.Close()

	_, err = service.Initiate("254712345678", 100000, "APPT_Z")
	var paymentErr *PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, PaymentErrTransport, paymentErr.Kind)
}

func TestParseSTKCallbackSuccessKeyBased(t *testing.T) {
	// Metadata items deliberately out of the provider's usual order:
	// extraction must match by name, not index.
	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "PhoneNumber", "Value": 254712345678},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "TransactionDate", "Value": 20260831143005},
						{"Name": "Amount", "Value": 1000.00}
					]
				}
			}
		}
	}`)

	result, err := ParseSTKCallback(payload)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", result.Reference)
	assert.True(t, result.Success)
	assert.Equal(t, int64(100000), result.AmountPaid)
	assert.Equal(t, "NLJ7RT61SV", result.TransactionID)
	assert.Equal(t, "254712345678", result.PayerPhone)
}

func TestParseSTKCallbackFailure(t *testing.T) {
	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr1",
				"CheckoutRequestID": "ws_CO_2",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	result, err := ParseSTKCallback(payload)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_2", result.Reference)
	assert.False(t, result.Success)
	assert.Equal(t, "Request cancelled by user", result.ResultDesc)
}

func TestParseSTKCallbackMalformed(t *testing.T) {
	_, err := ParseSTKCallback([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseSTKCallback([]byte(`{"Body":{}}`))
	assert.Error(t, err)
}
