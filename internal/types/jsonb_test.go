package types

import (
	"reflect"
	"testing"
)

func TestMetadataScanBytes(t *testing.T) {
	var m Metadata
	if err := m.Scan([]byte(`{"first_abandonedcart_mail": true, "count": 2}`)); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if m["first_abandonedcart_mail"] != true {
		t.Errorf("Scan lost boolean value: %v", m)
	}
	// JSON numbers decode as float64.
	if m["count"] != float64(2) {
		t.Errorf("count = %v (%T), want float64(2)", m["count"], m["count"])
	}
}

func TestMetadataScanString(t *testing.T) {
	var m Metadata
	if err := m.Scan(`{"locale": "de"}`); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if m["locale"] != "de" {
		t.Errorf("Scan from string failed: %v", m)
	}
}

// TestMetadataScanNull verifies a SQL NULL leaves the map nil rather than
// collapsing to {} at the persistence boundary.
func TestMetadataScanNull(t *testing.T) {
	m := Metadata{"stale": true}
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) returned error: %v", err)
	}
	if m != nil {
		t.Errorf("Scan(nil) should reset the map to nil, got %v", m)
	}
}

func TestMetadataScanUnsupportedType(t *testing.T) {
	var m Metadata
	if err := m.Scan(42); err == nil {
		t.Errorf("Scan(int) should return an error")
	}
}

func TestMetadataValue(t *testing.T) {
	m := Metadata{"upsell_sent": true}
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if string(v.([]byte)) != `{"upsell_sent":true}` {
		t.Errorf("Value() = %s", v)
	}
}

func TestMetadataValueNil(t *testing.T) {
	var m Metadata
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if v != nil {
		t.Errorf("nil Metadata should serialize as SQL NULL, got %v", v)
	}
}

func TestMetadataCloneIsDeep(t *testing.T) {
	m := Metadata{"nested": map[string]any{"stage": "first"}}
	c := m.Clone()

	c["nested"].(map[string]any)["stage"] = "second"

	if m["nested"].(map[string]any)["stage"] != "first" {
		t.Errorf("Clone shared nested state with the original")
	}
}

func TestMetadataCloneNil(t *testing.T) {
	var m Metadata
	if c := m.Clone(); c != nil {
		t.Errorf("Clone of nil should be nil, got %v", c)
	}
}

func TestMetadataOrEmpty(t *testing.T) {
	var m Metadata
	got := m.OrEmpty()
	if got == nil {
		t.Fatalf("OrEmpty of nil should return a non-nil map")
	}
	if len(got) != 0 {
		t.Errorf("OrEmpty of nil should be empty, got %v", got)
	}

	populated := Metadata{"k": "v"}
	if !reflect.DeepEqual(populated.OrEmpty(), populated) {
		t.Errorf("OrEmpty of non-nil should return the same content")
	}
}
