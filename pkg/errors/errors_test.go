package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewCodeValidation(t *testing.T) {
	valid := []string{"commit.requirement_failed", "registry.table_not_found", "scan.plan.invalid_state"}
	for _, s := range valid {
		if _, err := NewCode(s); err != nil {
			t.Errorf("NewCode(%q) rejected valid code: %v", s, err)
		}
	}

	invalid := []string{"", "nodot", "Upper.case", "trailing.", ".leading", "has space.x"}
	for _, s := range invalid {
		if _, err := NewCode(s); err == nil {
			t.Errorf("NewCode(%q) accepted invalid code", s)
		}
	}
}

func TestCodeParts(t *testing.T) {
	c := MustNewCode("commit.requirement_failed")
	if c.Package() != "commit" {
		t.Errorf("Package() = %q, want commit", c.Package())
	}
	if c.Name() != "requirement_failed" {
		t.Errorf("Name() = %q, want requirement_failed", c.Name())
	}
}

func TestCodeClassDefaults(t *testing.T) {
	if CommonInternal.Class() != ClassInternal {
		t.Error("CommonInternal should classify as internal")
	}
	if CommonNotFound.Class() != ClassNotFound {
		t.Error("CommonNotFound should classify as not found")
	}
	if CommonConflict.Class() != ClassConflict {
		t.Error("CommonConflict should classify as conflict")
	}
	if CommonInvalidInput.Class() != ClassInvalidArgument {
		t.Error("CommonInvalidInput should classify as invalid argument")
	}
}

func TestErrorChaining(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(CommonInternal, "failed to persist metadata", cause).
		AddContext("table", "orders").
		AddContext("namespace", "sales")

	if err.Error() != "failed to persist metadata: disk full" {
		t.Errorf("unexpected Error(): %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should unwrap to cause")
	}
	if err.Context["table"] != "orders" {
		t.Errorf("context not recorded: %v", err.Context)
	}
	if len(err.Stack) == 0 {
		t.Error("stack trace not captured")
	}
}

func TestClassOf(t *testing.T) {
	if ClassOf(New(CommonConflict, "ref moved", nil)) != ClassConflict {
		t.Error("ClassOf should report the code's class")
	}
	if ClassOf(fmt.Errorf("plain")) != ClassInternal {
		t.Error("foreign errors classify as internal")
	}
	if !HasClass(New(CommonNotFound, "no such table", nil), ClassNotFound) {
		t.Error("HasClass mismatch")
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}

	orig := New(CommonValidation, "bad input", nil)
	if AsError(orig) != orig {
		t.Error("AsError should pass through *Error unchanged")
	}

	converted := AsError(fmt.Errorf("boom"))
	if !converted.Code.Equals(CommonInternal) {
		t.Errorf("foreign error should wrap as internal, got %s", converted.Code)
	}
}
