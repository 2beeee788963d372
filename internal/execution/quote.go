package execution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

type StepKind string

const (
	StepKindTransaction StepKind = "transaction"
	StepKindSignature   StepKind = "signature"
)

// Check describes a status endpoint polled after a step completes.
type Check struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method,omitempty"`
}

// Step is either a TransactionStep or a SignatureStep.
type Step interface {
	Kind() StepKind
	Correlation() string
	StatusCheck() *Check
	isStep()
}

type TransactionStep struct {
	ID        string
	RequestID string
	To        common.Address
	Data      []byte
	Value     *big.Int
	ChainID   int64
	Check     *Check
}

func (s TransactionStep) Kind() StepKind      { return StepKindTransaction }
func (s TransactionStep) Correlation() string { return s.RequestID }
func (s TransactionStep) StatusCheck() *Check { return s.Check }
func (TransactionStep) isStep()               {}

// SignPayload holds exactly one of a personal_sign message or an EIP-712 document.
type SignPayload struct {
	Message   []byte
	TypedData *apitypes.TypedData
}

type SignatureStep struct {
	ID           string
	RequestID    string
	Payload      SignPayload
	PostEndpoint string
	PostMethod   string
	PostData     map[string]any
	Check        *Check
}

func (s SignatureStep) Kind() StepKind      { return StepKindSignature }
func (s SignatureStep) Correlation() string { return s.RequestID }
func (s SignatureStep) StatusCheck() *Check { return s.Check }
func (SignatureStep) isStep()               {}

type Quote struct {
	RequestID string
	Steps     []Step
}

type wireQuote struct {
	RequestID string     `json:"requestId"`
	Steps     []wireStep `json:"steps"`
}

type wireStep struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	RequestID    string          `json:"requestId"`
	To           string          `json:"to"`
	Data         string          `json:"data"`
	Value        json.RawMessage `json:"value"`
	ChainID      json.RawMessage `json:"chainId"`
	SignData     json.RawMessage `json:"signData"`
	PostEndpoint string          `json:"postEndpoint"`
	PostMethod   string          `json:"postMethod"`
	PostData     map[string]any  `json:"postData"`
	Check        *Check          `json:"check"`
	Items        []wireItem      `json:"items"`
}

type wireItem struct {
	Status string       `json:"status"`
	Data   wireItemData `json:"data"`
	Check  *Check       `json:"check"`
}

type wireItemData struct {
	To      string          `json:"to"`
	Data    string          `json:"data"`
	Value   json.RawMessage `json:"value"`
	ChainID json.RawMessage `json:"chainId"`
	Sign    *wireSign       `json:"sign"`
	Post    *wirePost       `json:"post"`
}

type wireSign struct {
	SignatureKind string          `json:"signatureKind"`
	Message       string          `json:"message"`
	Domain        json.RawMessage `json:"domain"`
	Types         json.RawMessage `json:"types"`
	Value         json.RawMessage `json:"value"`
	PrimaryType   string          `json:"primaryType"`
}

type wirePost struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method"`
	Body     map[string]any `json:"body"`
}

// ParseQuote decodes raw aggregator JSON and normalizes it into a Quote.
func ParseQuote(raw []byte) (Quote, error) {
	var wq wireQuote
	if err := json.Unmarshal(raw, &wq); err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeMalformedQuote, "decode quote", err)
	}
	return normalizeQuote(wq)
}

// NormalizeQuote accepts an already-decoded JSON value (for example the quote
// field of an HTTP request body).
func NormalizeQuote(v any) (Quote, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return ParseQuote(raw)
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeMalformedQuote, "encode quote", err)
	}
	return ParseQuote(buf)
}

func normalizeQuote(wq wireQuote) (Quote, error) {
	if len(wq.Steps) == 0 {
		return Quote{}, clierr.New(clierr.CodeMalformedQuote, "quote has no steps")
	}
	q := Quote{RequestID: strings.TrimSpace(wq.RequestID)}
	for i, ws := range wq.Steps {
		steps, err := normalizeStep(ws)
		if err != nil {
			return Quote{}, clierr.Wrap(clierr.CodeMalformedQuote, fmt.Sprintf("step %d", i), err)
		}
		q.Steps = append(q.Steps, steps...)
	}
	if q.RequestID == "" {
		q.RequestID = q.Steps[0].Correlation()
	}
	return q, nil
}

func normalizeStep(ws wireStep) ([]Step, error) {
	requestID := strings.TrimSpace(ws.RequestID)
	if requestID == "" {
		return nil, fmt.Errorf("missing requestId")
	}
	switch StepKind(strings.ToLower(strings.TrimSpace(ws.Kind))) {
	case StepKindTransaction:
		if hasSignatureFields(ws) {
			return nil, fmt.Errorf("transaction step carries signature fields")
		}
		return normalizeTransaction(ws, requestID)
	case StepKindSignature:
		if ws.To != "" || ws.Data != "" {
			return nil, fmt.Errorf("signature step carries transaction fields")
		}
		return normalizeSignature(ws, requestID)
	default:
		return nil, fmt.Errorf("unknown step kind %q", ws.Kind)
	}
}

func hasSignatureFields(ws wireStep) bool {
	if isPresent(ws.SignData) || ws.PostEndpoint != "" {
		return true
	}
	for _, item := range ws.Items {
		if item.Data.Sign != nil || item.Data.Post != nil {
			return true
		}
	}
	return false
}

func normalizeTransaction(ws wireStep, requestID string) ([]Step, error) {
	flat := wireItemData{To: ws.To, Data: ws.Data, Value: ws.Value, ChainID: ws.ChainID}
	if flat.To != "" || flat.Data != "" || isPresent(flat.ChainID) || len(ws.Items) == 0 {
		// Flat fields win; the first item only fills the gaps.
		check := ws.Check
		if len(ws.Items) > 0 {
			first := ws.Items[0]
			if flat.To == "" {
				flat.To = first.Data.To
			}
			if flat.Data == "" {
				flat.Data = first.Data.Data
			}
			if !isPresent(flat.Value) {
				flat.Value = first.Data.Value
			}
			if !isPresent(flat.ChainID) {
				flat.ChainID = first.Data.ChainID
			}
			if check == nil {
				check = first.Check
			}
		}
		step, err := buildTransaction(ws.ID, requestID, flat, check)
		if err != nil {
			return nil, err
		}
		return []Step{step}, nil
	}

	steps := make([]Step, 0, len(ws.Items))
	for i, item := range ws.Items {
		check := item.Check
		if check == nil {
			check = ws.Check
		}
		step, err := buildTransaction(ws.ID, requestID, item.Data, check)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildTransaction(stepID, requestID string, d wireItemData, check *Check) (TransactionStep, error) {
	if d.To == "" || d.Data == "" || !isPresent(d.ChainID) {
		return TransactionStep{}, fmt.Errorf("invalid transaction step: missing to, data, or chainId")
	}
	if !common.IsHexAddress(d.To) {
		return TransactionStep{}, fmt.Errorf("invalid to address %q", d.To)
	}
	data, err := hexutil.Decode(d.Data)
	if err != nil {
		return TransactionStep{}, fmt.Errorf("invalid call data: %w", err)
	}
	value, err := parseBigInt(d.Value)
	if err != nil {
		return TransactionStep{}, fmt.Errorf("invalid value: %w", err)
	}
	chainID, err := parseBigInt(d.ChainID)
	if err != nil || !chainID.IsInt64() || chainID.Sign() <= 0 {
		return TransactionStep{}, fmt.Errorf("invalid chainId %s", string(d.ChainID))
	}
	normalizedCheck, err := normalizeCheck(check)
	if err != nil {
		return TransactionStep{}, err
	}
	return TransactionStep{
		ID:        stepID,
		RequestID: requestID,
		To:        common.HexToAddress(d.To),
		Data:      data,
		Value:     value,
		ChainID:   chainID.Int64(),
		Check:     normalizedCheck,
	}, nil
}

func normalizeSignature(ws wireStep, requestID string) ([]Step, error) {
	if isPresent(ws.SignData) || ws.PostEndpoint != "" {
		if !isPresent(ws.SignData) || strings.TrimSpace(ws.PostEndpoint) == "" {
			return nil, fmt.Errorf("missing signData or postEndpoint for signature step")
		}
		payload, err := parseSignData(ws.SignData)
		if err != nil {
			return nil, err
		}
		step, err := buildSignature(ws.ID, requestID, payload, ws.PostEndpoint, ws.PostMethod, ws.PostData, ws.Check)
		if err != nil {
			return nil, err
		}
		return []Step{step}, nil
	}
	if len(ws.Items) == 0 {
		return nil, fmt.Errorf("missing signData or postEndpoint for signature step")
	}

	steps := make([]Step, 0, len(ws.Items))
	for i, item := range ws.Items {
		if item.Data.Sign == nil || item.Data.Post == nil || strings.TrimSpace(item.Data.Post.Endpoint) == "" {
			return nil, fmt.Errorf("item %d: missing signData or postEndpoint for signature step", i)
		}
		payload, err := parseRelaySign(*item.Data.Sign)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		check := item.Check
		if check == nil {
			check = ws.Check
		}
		step, err := buildSignature(ws.ID, requestID, payload, item.Data.Post.Endpoint, item.Data.Post.Method, item.Data.Post.Body, check)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildSignature(stepID, requestID string, payload SignPayload, endpoint, method string, postData map[string]any, check *Check) (SignatureStep, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !endpointAllowed(endpoint) {
		return SignatureStep{}, fmt.Errorf("post endpoint %q must be https or a loopback address", endpoint)
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "POST"
	}
	if method != "POST" && method != "PUT" {
		return SignatureStep{}, fmt.Errorf("unsupported post method: %s", method)
	}
	if _, ok := postData["signature"]; ok {
		return SignatureStep{}, fmt.Errorf("postData must not carry a signature field")
	}
	normalizedCheck, err := normalizeCheck(check)
	if err != nil {
		return SignatureStep{}, err
	}
	return SignatureStep{
		ID:           stepID,
		RequestID:    requestID,
		Payload:      payload,
		PostEndpoint: endpoint,
		PostMethod:   method,
		PostData:     postData,
		Check:        normalizedCheck,
	}, nil
}

// parseSignData accepts a plain string (signed with personal_sign) or an
// EIP-712 document with types and primaryType.
func parseSignData(raw json.RawMessage) (SignPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var msg string
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return SignPayload{}, fmt.Errorf("decode signData: %w", err)
		}
		if msg == "" {
			return SignPayload{}, fmt.Errorf("missing signData or postEndpoint for signature step")
		}
		return SignPayload{Message: []byte(msg)}, nil
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		td, err := signer.ParseTypedData(trimmed)
		if err != nil {
			return SignPayload{}, fmt.Errorf("signData: %w", err)
		}
		return SignPayload{TypedData: &td}, nil
	}
	return SignPayload{}, fmt.Errorf("signData must be a string or typed-data object")
}

func parseRelaySign(s wireSign) (SignPayload, error) {
	switch strings.ToLower(strings.TrimSpace(s.SignatureKind)) {
	case "eip191":
		if s.Message == "" {
			return SignPayload{}, fmt.Errorf("eip191 sign request has no message")
		}
		if strings.HasPrefix(s.Message, "0x") {
			raw, err := hexutil.Decode(s.Message)
			if err != nil {
				return SignPayload{}, fmt.Errorf("eip191 message: %w", err)
			}
			return SignPayload{Message: raw}, nil
		}
		return SignPayload{Message: []byte(s.Message)}, nil
	case "eip712":
		doc := map[string]json.RawMessage{
			"domain":  s.Domain,
			"types":   s.Types,
			"message": s.Value,
		}
		pt, err := json.Marshal(s.PrimaryType)
		if err != nil {
			return SignPayload{}, err
		}
		doc["primaryType"] = pt
		for k, v := range doc {
			if !isPresent(v) {
				delete(doc, k)
			}
		}
		buf, err := json.Marshal(doc)
		if err != nil {
			return SignPayload{}, err
		}
		td, err := signer.ParseTypedData(buf)
		if err != nil {
			return SignPayload{}, fmt.Errorf("eip712 sign request: %w", err)
		}
		return SignPayload{TypedData: &td}, nil
	default:
		return SignPayload{}, fmt.Errorf("unsupported signatureKind %q", s.SignatureKind)
	}
}

func normalizeCheck(c *Check) (*Check, error) {
	if c == nil || strings.TrimSpace(c.Endpoint) == "" {
		return nil, nil
	}
	endpoint := strings.TrimSpace(c.Endpoint)
	if !endpointAllowed(endpoint) {
		return nil, fmt.Errorf("check endpoint %q must be https or a loopback address", endpoint)
	}
	method := strings.ToUpper(strings.TrimSpace(c.Method))
	switch method {
	case "":
		method = http.MethodGet
	case http.MethodGet, http.MethodPost:
	default:
		return nil, fmt.Errorf("unsupported check method %q", c.Method)
	}
	return &Check{Endpoint: endpoint, Method: method}, nil
}

// Relative endpoints resolve against the configured API base; absolute ones must pass the allowlist.
func endpointAllowed(endpoint string) bool {
	if !isAbsoluteURL(endpoint) {
		return strings.HasPrefix(endpoint, "/")
	}
	return registry.IsAllowedStepURL(endpoint)
}

func isAbsoluteURL(endpoint string) bool {
	return strings.HasPrefix(strings.ToLower(endpoint), "http")
}

func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseBigInt accepts a JSON number, a decimal string or a 0x-prefixed hex string.
func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	if !isPresent(raw) {
		return new(big.Int), nil
	}
	trimmed := bytes.TrimSpace(raw)
	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, err
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		digits := text[2:]
		if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
			return nil, fmt.Errorf("%q is not a non-negative hex integer", text)
		}
		v, ok := new(big.Int).SetString(digits, 16)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("%q is not a non-negative hex integer", text)
		}
		return v, nil
	}
	if strings.HasPrefix(text, "-") || strings.HasPrefix(text, "+") {
		return nil, fmt.Errorf("%q is not a non-negative integer", text)
	}
	if strings.ContainsAny(text, ".eE") {
		return nil, fmt.Errorf("%q is not an integer", text)
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%q is not a non-negative integer", text)
	}
	return v, nil
}
