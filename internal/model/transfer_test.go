package model

import (
	"encoding/json"
	"testing"
)

func TestTransferRecordAmountIsString(t *testing.T) {
	record := TransferRecord{
		ChainID:     1337,
		BlockNumber: 42,
		TxHash:      "0xdef456",
		Token:       "0x1111111111111111111111111111111111111111",
		From:        "0x2222222222222222222222222222222222222222",
		To:          "0x3333333333333333333333333333333333333333",
		Amount:      "50000000000000000000",
		Direction:   TransferOut,
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["amount"].(string); !ok {
		t.Fatalf("amount should be string")
	}
	if decoded["direction"] != "out" {
		t.Fatalf("direction mismatch: %v", decoded["direction"])
	}
}
