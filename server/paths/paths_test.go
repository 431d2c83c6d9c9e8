package paths

import (
	"regexp"
	"strings"
	"testing"
)

func TestGetTableLocation(t *testing.T) {
	m := NewManager("s3://warehouse/")

	loc := m.GetTableLocation([]string{"accounting", "tax"}, "returns")
	want := "s3://warehouse/accounting.tax/returns"
	if loc != want {
		t.Errorf("GetTableLocation = %q, want %q", loc, want)
	}

	if m.GetWarehouse() != "s3://warehouse" {
		t.Errorf("warehouse should drop the trailing slash: %q", m.GetWarehouse())
	}
}

func TestGetMetadataLocation(t *testing.T) {
	m := NewManager("s3://warehouse")
	loc := m.GetMetadataLocation("s3://warehouse/sales/orders", 3)

	if !strings.HasPrefix(loc, "s3://warehouse/sales/orders/metadata/00003-") {
		t.Errorf("unexpected metadata location prefix: %q", loc)
	}

	pattern := regexp.MustCompile(`/metadata/\d{5}-[0-9A-HJKMNP-TV-Z]{26}\.metadata\.json$`)
	if !pattern.MatchString(loc) {
		t.Errorf("metadata location does not match expected format: %q", loc)
	}

	// Two locations for the same version must not collide
	other := m.GetMetadataLocation("s3://warehouse/sales/orders", 3)
	if loc == other {
		t.Error("metadata locations for retried writes must be unique")
	}
}
