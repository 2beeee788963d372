package execution

import (
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

func TestParseQuoteFlatSteps(t *testing.T) {
	raw := `{
		"requestId": "0xreq",
		"steps": [
			{"kind": "transaction", "requestId": "0xreq", "to": "0x0000000000000000000000000000000000000001", "data": "0xabcd", "value": "1000", "chainId": 84532,
			 "check": {"endpoint": "/intents/status/v2?requestId=0xreq", "method": "get"}},
			{"kind": "signature", "requestId": "0xreq", "signData": "hello", "postEndpoint": "/execute/permits", "postData": {"kind": "permit"}}
		]
	}`
	q, err := ParseQuote([]byte(raw))
	if err != nil {
		t.Fatalf("ParseQuote failed: %v", err)
	}
	if q.RequestID != "0xreq" || len(q.Steps) != 2 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	tx, ok := q.Steps[0].(TransactionStep)
	if !ok {
		t.Fatalf("expected transaction step, got %T", q.Steps[0])
	}
	if tx.ChainID != 84532 || tx.Value.String() != "1000" || len(tx.Data) != 2 {
		t.Fatalf("unexpected transaction step: %+v", tx)
	}
	if tx.Check == nil || tx.Check.Method != "GET" {
		t.Fatalf("expected normalized check, got %+v", tx.Check)
	}
	sig, ok := q.Steps[1].(SignatureStep)
	if !ok {
		t.Fatalf("expected signature step, got %T", q.Steps[1])
	}
	if string(sig.Payload.Message) != "hello" || sig.PostMethod != "POST" || sig.PostData["kind"] != "permit" {
		t.Fatalf("unexpected signature step: %+v", sig)
	}
}

func TestParseQuoteItemsFallback(t *testing.T) {
	raw := `{"steps": [{
		"id": "deposit", "kind": "transaction", "requestId": "0xabc",
		"items": [{"status": "incomplete", "data": {"to": "0x0000000000000000000000000000000000000002", "data": "0x", "value": "0x0de0b6b3a7640000", "chainId": "11155111"},
		           "check": {"endpoint": "/intents/status/v2?requestId=0xabc", "method": "GET"}}]
	}]}`
	q, err := ParseQuote([]byte(raw))
	if err != nil {
		t.Fatalf("ParseQuote failed: %v", err)
	}
	if q.RequestID != "0xabc" {
		t.Fatalf("expected request id from step, got %q", q.RequestID)
	}
	tx := q.Steps[0].(TransactionStep)
	if tx.ChainID != 11155111 || tx.Value.String() != "1000000000000000000" {
		t.Fatalf("unexpected item step: %+v", tx)
	}
	if tx.Check == nil || !strings.HasPrefix(tx.Check.Endpoint, "/intents/status/v2") {
		t.Fatalf("expected item check, got %+v", tx.Check)
	}
}

func TestParseQuoteExpandsMultipleItems(t *testing.T) {
	raw := `{"steps": [{"kind": "transaction", "requestId": "r", "items": [
		{"data": {"to": "0x0000000000000000000000000000000000000001", "data": "0x01", "chainId": 1}},
		{"data": {"to": "0x0000000000000000000000000000000000000002", "data": "0x02", "chainId": 1}}
	]}]}`
	q, err := ParseQuote([]byte(raw))
	if err != nil {
		t.Fatalf("ParseQuote failed: %v", err)
	}
	if len(q.Steps) != 2 {
		t.Fatalf("expected two steps, got %d", len(q.Steps))
	}
	if q.Steps[1].(TransactionStep).Data[0] != 0x02 {
		t.Fatal("item order not preserved")
	}
}

func TestParseQuoteRelaySignatureItems(t *testing.T) {
	raw := `{"steps": [
		{"kind": "signature", "requestId": "r1", "items": [{"data": {
			"sign": {"signatureKind": "eip191", "message": "0xdeadbeef"},
			"post": {"endpoint": "/authorize", "method": "POST", "body": {"id": "x"}}}}]},
		{"kind": "signature", "requestId": "r1", "items": [{"data": {
			"sign": {"signatureKind": "eip712",
				"domain": {"name": "Relay", "chainId": 1},
				"types": {"Order": [{"name": "amount", "type": "uint256"}]},
				"value": {"amount": 115792089237316195423570985008687907853269984665640564039457584007913129639935},
				"primaryType": "Order"},
			"post": {"endpoint": "https://api.relay.link/execute/permits", "method": "put", "body": {}}}}]}
	]}`
	q, err := ParseQuote([]byte(raw))
	if err != nil {
		t.Fatalf("ParseQuote failed: %v", err)
	}
	first := q.Steps[0].(SignatureStep)
	if len(first.Payload.Message) != 4 || first.Payload.Message[0] != 0xde {
		t.Fatalf("expected raw eip191 bytes, got %x", first.Payload.Message)
	}
	second := q.Steps[1].(SignatureStep)
	if second.Payload.TypedData == nil || second.PostMethod != "PUT" {
		t.Fatalf("unexpected eip712 step: %+v", second)
	}
	if got := second.Payload.TypedData.Message["amount"]; got != "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
		t.Fatalf("uint256 value not preserved: %v", got)
	}
}

func TestParseQuoteFailsClosed(t *testing.T) {
	cases := map[string]string{
		"no steps":           `{"steps": []}`,
		"missing requestId":  `{"steps": [{"kind": "transaction", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "chainId": 1}]}`,
		"unknown kind":       `{"steps": [{"kind": "deposit", "requestId": "r"}]}`,
		"missing chainId":    `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x"}]}`,
		"missing to":         `{"steps": [{"kind": "transaction", "requestId": "r", "items": [{"data": {"data": "0x", "chainId": 1}}]}]}`,
		"bad address":        `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x1234", "data": "0x", "chainId": 1}]}`,
		"bad hex":            `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0xzz", "chainId": 1}]}`,
		"fractional value":   `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "value": "1.5", "chainId": 1}]}`,
		"negative hex value": `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "value": "0x-1", "chainId": 1}]}`,
		"signed decimal":     `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "value": "+5", "chainId": 1}]}`,
		"negative chainId":   `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "chainId": "0x-a"}]}`,
		"missing signData":   `{"steps": [{"kind": "signature", "requestId": "r", "postEndpoint": "/x"}]}`,
		"missing endpoint":   `{"steps": [{"kind": "signature", "requestId": "r", "signData": "m"}]}`,
		"bad method":         `{"steps": [{"kind": "signature", "requestId": "r", "signData": "m", "postEndpoint": "/x", "postMethod": "DELETE"}]}`,
		"plain http":         `{"steps": [{"kind": "signature", "requestId": "r", "signData": "m", "postEndpoint": "http://evil.example/x"}]}`,
		"bad check method":   `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "chainId": 1, "check": {"endpoint": "/s", "method": "DELETE"}}]}`,
		"mixed variant":      `{"steps": [{"kind": "transaction", "requestId": "r", "to": "0x0000000000000000000000000000000000000001", "data": "0x", "chainId": 1, "signData": "m"}]}`,
		"not json":           `steps`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuote([]byte(raw))
			if err == nil {
				t.Fatal("expected malformed quote error")
			}
			if clierr.CodeOf(err) != clierr.CodeMalformedQuote {
				t.Fatalf("expected malformed quote code, got %v", err)
			}
		})
	}
}

func TestNormalizeQuoteFromDecodedValue(t *testing.T) {
	decoded := map[string]any{
		"requestId": "r",
		"steps": []any{map[string]any{
			"kind": "transaction", "requestId": "r",
			"to": "0x0000000000000000000000000000000000000001", "data": "0x", "chainId": 10,
		}},
	}
	q, err := NormalizeQuote(decoded)
	if err != nil {
		t.Fatalf("NormalizeQuote failed: %v", err)
	}
	if q.Steps[0].(TransactionStep).ChainID != 10 {
		t.Fatalf("unexpected chain id")
	}
}
