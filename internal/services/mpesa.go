package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AfyaLink/afyachat-backend/internal/models"
)

const mpesaSandboxURL = "https://sandbox.safaricom.co.ke"

// MpesaService talks to the Daraja API: OAuth credential, STK push,
// transaction status query and callback parsing.
type MpesaService struct {
	businessShortcode string
	consumerKey       string
	consumerSecret    string
	passkey           string
	callbackURL       string
	baseURL           string
	client            *http.Client

	// Access tokens are short-lived; cache one for its validity window so
	// every push doesn't pay for an extra auth round trip.
	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewMpesaService builds the client from environment configuration.
func NewMpesaService() (*MpesaService, error) {
	s := &MpesaService{
		businessShortcode: os.Getenv("MPESA_BUSINESS_SHORTCODE"),
		consumerKey:       os.Getenv("MPESA_CONSUMER_KEY"),
		consumerSecret:    os.Getenv("MPESA_CONSUMER_SECRET"),
		passkey:           os.Getenv("MPESA_PASSKEY"),
		callbackURL:       os.Getenv("MPESA_CALLBACK_URL"),
		baseURL:           os.Getenv("MPESA_BASE_URL"),
		client:            &http.Client{Timeout: 10 * time.Second},
	}
	if s.baseURL == "" {
		s.baseURL = mpesaSandboxURL
	}
	if s.businessShortcode == "" || s.consumerKey == "" || s.consumerSecret == "" || s.passkey == "" {
		return nil, fmt.Errorf("missing M-Pesa credentials in environment variables")
	}
	return s, nil
}

// Channel implements PaymentInitiator.
func (s *MpesaService) Channel() string {
	return models.PaymentChannelMpesa
}

// EligiblePhone implements PaymentInitiator. STK push only works for
// Kenyan numbers in 2547XXXXXXXX form.
func (s *MpesaService) EligiblePhone(phone string) bool {
	return strings.HasPrefix(phone, "254")
}

// IneligibleNotice implements PaymentInitiator.
func (s *MpesaService) IneligibleNotice() string {
	return "Sorry, M-PESA payments are only available for Kenyan phone numbers. " +
		"Please provide a valid Kenyan phone number."
}

type mpesaAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns the cached OAuth token, fetching a fresh one when the
// cached one is within a minute of expiry.
func (s *MpesaService) accessToken() (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry.Add(-time.Minute)) {
		return s.token, nil
	}

	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", &PaymentError{Kind: PaymentErrCredential, Err: err}
	}
	auth := base64.StdEncoding.EncodeToString([]byte(s.consumerKey + ":" + s.consumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &PaymentError{Kind: PaymentErrCredential, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &PaymentError{Kind: PaymentErrCredential, Err: fmt.Errorf("auth returned status %d", resp.StatusCode)}
	}

	var authResp mpesaAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil || authResp.AccessToken == "" {
		return "", &PaymentError{Kind: PaymentErrCredential, Err: fmt.Errorf("invalid auth response: %v", err)}
	}

	ttl := 3600 * time.Second
	if seconds, err := strconv.Atoi(authResp.ExpiresIn); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	s.token = authResp.AccessToken
	s.tokenExpiry = time.Now().Add(ttl)
	return s.token, nil
}

// generatePassword derives the STK password: base64(shortcode+passkey+timestamp)
// with the timestamp in YYYYMMDDHHMMSS form.
func (s *MpesaService) generatePassword(now time.Time) (password, timestamp string) {
	timestamp = now.Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(s.businessShortcode + s.passkey + timestamp))
	return password, timestamp
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

// Initiate implements PaymentInitiator: pushes a payment prompt to the
// payer's device. The amount arrives in minor units; M-Pesa bills whole
// shillings.
func (s *MpesaService) Initiate(phone string, amount int64, reference string) (*PaymentRequest, error) {
	token, err := s.accessToken()
	if err != nil {
		return nil, err
	}

	password, timestamp := s.generatePassword(time.Now())
	payload := stkPushRequest{
		BusinessShortCode: s.businessShortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount / 100,
		PartyA:            phone,
		PartyB:            s.businessShortcode,
		PhoneNumber:       phone,
		CallBackURL:       s.callbackURL + "/mpesa-callback",
		AccountReference:  reference,
		TransactionDesc:   fmt.Sprintf("Payment for %s", reference),
	}

	pushResp, err := s.postJSON("/mpesa/stkpush/v1/processrequest", token, payload)
	if err != nil {
		return nil, err
	}

	if pushResp.ResponseCode != "0" {
		desc := pushResp.ResponseDescription
		if desc == "" {
			desc = pushResp.ErrorMessage
		}
		return nil, &PaymentError{
			Kind: PaymentErrProviderRejected,
			Err:  fmt.Errorf("STK push rejected with code %q: %s", pushResp.ResponseCode, desc),
		}
	}

	return &PaymentRequest{
		Reference:         reference,
		CheckoutRequestID: pushResp.CheckoutRequestID,
		PromptSent:        true,
	}, nil
}

// QueryStatus asks the provider for the state of an earlier STK push.
func (s *MpesaService) QueryStatus(checkoutRequestID string) (map[string]interface{}, error) {
	token, err := s.accessToken()
	if err != nil {
		return nil, err
	}

	password, timestamp := s.generatePassword(time.Now())
	payload := map[string]string{
		"BusinessShortCode": s.businessShortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/mpesa/stkpushquery/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: err}
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: err}
	}
	return status, nil
}

func (s *MpesaService) postJSON(path, token string, payload interface{}) (*stkPushResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: err}
	}

	var pushResp stkPushResponse
	if err := json.Unmarshal(raw, &pushResp); err != nil {
		return nil, &PaymentError{Kind: PaymentErrTransport, Err: fmt.Errorf("unreadable provider response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK && pushResp.ResponseCode == "" {
		return nil, &PaymentError{
			Kind: PaymentErrProviderRejected,
			Err:  fmt.Errorf("provider returned status %d: %s", resp.StatusCode, pushResp.ErrorMessage),
		}
	}
	return &pushResp, nil
}

// stkCallbackEnvelope mirrors the nested callback payload Daraja posts to
// the callback URL.
type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []stkCallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// ParseSTKCallback extracts the reconciliation fields from a callback
// payload. Metadata items are matched by name; the provider does not
// guarantee their order.
func ParseSTKCallback(payload []byte) (*CallbackResult, error) {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("malformed callback payload: %w", err)
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("callback payload missing CheckoutRequestID")
	}

	result := &CallbackResult{
		Reference:  cb.CheckoutRequestID,
		Success:    cb.ResultCode == 0,
		ResultDesc: cb.ResultDesc,
	}
	if !result.Success {
		return result, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if amount, ok := item.Value.(float64); ok {
				result.AmountPaid = int64(amount * 100)
			}
		case "MpesaReceiptNumber":
			if receipt, ok := item.Value.(string); ok {
				result.TransactionID = receipt
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				result.PayerPhone = strconv.FormatInt(int64(v), 10)
			case string:
				result.PayerPhone = v
			}
		}
	}
	return result, nil
}
