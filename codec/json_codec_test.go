package codec

import "testing"

type sample struct {
	A int    `json:"a"`
	B string `json:"b"`
}

func TestJSONRoundTrip(t *testing.T) {
	original := sample{A: 7, B: "hi"}

	data, err := JSON.Encode(&original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var got sample
	if err := JSON.Decode(data, &got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, original)
	}
}
