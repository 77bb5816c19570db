package stagectx

import "testing"

type payload struct {
	Foo string `json:"foo"`
}

func TestShimDataRoundTripsPayload(t *testing.T) {
	shim := &Shim{JobID: "job-1", Payload: payload{Foo: "bar"}}

	var out payload
	if err := shim.Data(&out); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if out.Foo != "bar" {
		t.Fatalf("expected bar, got %q", out.Foo)
	}
}

func TestShimIDReturnsJobID(t *testing.T) {
	shim := &Shim{JobID: "abc"}
	if shim.ID() != "abc" {
		t.Fatalf("expected abc, got %q", shim.ID())
	}
}

func TestShimUpdateProgressIsNoop(t *testing.T) {
	shim := &Shim{JobID: "abc"}
	if err := shim.UpdateProgress(nil, "halfway"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
