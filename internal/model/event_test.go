package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEventJSONRoundTrip(t *testing.T) {
	pid := uint64(3)
	original := Event{
		ID:        "6f1c2a0e-3b51-4f0c-9d2e-4d7a9a1f0b11",
		Name:      EventContributed,
		PoolID:    &pid,
		Account:   "0x1111111111111111111111111111111111111111",
		Amount:    "7000",
		Timestamp: 1700000000,
		Height:    120,
		Fields:    map[string]string{"requested": "8000", "reason": "pool full"},
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestPoolAmountsAreJSONStrings(t *testing.T) {
	payload := Pool{
		Variant:       "allocation",
		Price:         "2000000000000000000",
		MinAllocation: "500",
		MaxAllocation: "5000",
		PoolLimit:     "10000",
		TotalRaised:   "3000",
		RewardBalance: "0",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"price", "min_allocation", "max_allocation", "pool_limit", "total_raised"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
	if _, ok := decoded["vesting"]; ok {
		t.Fatalf("nil vesting should be omitted")
	}
}
