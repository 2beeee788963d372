package signer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ParseTypedData decodes an EIP-712 payload as served by aggregator APIs.
// JSON numbers are kept as decimal strings so uint256 values survive hashing,
// and a missing EIP712Domain type is derived from the populated domain fields.
func ParseTypedData(raw []byte) (apitypes.TypedData, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("decode typed data: %w", err)
	}
	if _, ok := generic["types"].(map[string]any); !ok {
		return apitypes.TypedData{}, fmt.Errorf("typed data is missing types")
	}
	if pt, _ := generic["primaryType"].(string); pt == "" {
		return apitypes.TypedData{}, fmt.Errorf("typed data is missing primaryType")
	}
	for _, key := range []string{"domain", "message"} {
		if v, ok := generic[key]; ok {
			generic[key] = numbersToStrings(v)
		}
	}

	buf, err := json.Marshal(generic)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	var td apitypes.TypedData
	if err := json.Unmarshal(buf, &td); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("decode typed data: %w", err)
	}
	if _, ok := td.Types["EIP712Domain"]; !ok {
		td.Types["EIP712Domain"] = inferDomainType(td.Domain)
	}
	return td, nil
}

func inferDomainType(domain apitypes.TypedDataDomain) []apitypes.Type {
	fields := []apitypes.Type{}
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

func numbersToStrings(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = numbersToStrings(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = numbersToStrings(inner)
		}
		return t
	default:
		return v
	}
}
