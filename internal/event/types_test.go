package event

import "testing"

func TestRegistryClasses(t *testing.T) {
	tests := []struct {
		typ  Type
		cls  Class
		kind string
	}{
		{PinCreate, ClassCreate, "pin"},
		{PinUpdate, ClassUpdate, "pin"},
		{PinApproval, ClassAppend, "pin"},
		{BusinessRegister, ClassCreate, "business"},
		{BusinessUpdate, ClassUpdate, "business"},
		{PromiseCreate, ClassCreate, "promise"},
		{PromiseAccept, ClassAppend, "promise"},
		{PromiseReject, ClassAppend, "promise"},
		{PromiseSettle, ClassAppend, "promise"},
		{ChatMessage, ClassCreate, "chat"},
		{ServiceCreate, ClassCreate, "service"},
		{ServiceUpdate, ClassUpdate, "service"},
	}

	for _, tt := range tests {
		if !Known(tt.typ) {
			t.Errorf("Known(%s) = false", tt.typ)
		}
		if got := ClassOf(tt.typ); got != tt.cls {
			t.Errorf("ClassOf(%s) = %v, want %v", tt.typ, got, tt.cls)
		}
		if got := KindOf(tt.typ); got != tt.kind {
			t.Errorf("KindOf(%s) = %q, want %q", tt.typ, got, tt.kind)
		}
	}

	if len(tests) != len(All()) {
		t.Errorf("registry has %d types, test covers %d", len(All()), len(tests))
	}
}

func TestUnknownType(t *testing.T) {
	if Known("pin-delete") {
		t.Error("Known(pin-delete) = true")
	}
	if ClassOf("pin-delete") != 0 {
		t.Error("ClassOf(pin-delete) != 0")
	}
	if KindOf("pin-delete") != "" {
		t.Error("KindOf(pin-delete) != empty")
	}
}

func TestEntityKind(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"pin:semay", "pin"},
		{"service:plumber-1", "service"},
		{"promise:p:nested", "promise"},
		{"no-namespace", ""},
		{":empty-kind", ""},
	}
	for _, tt := range tests {
		if got := EntityKind(tt.id); got != tt.want {
			t.Errorf("EntityKind(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
