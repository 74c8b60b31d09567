package compiler

import "testing"

func TestSymbolTableRegisters(t *testing.T) {
	st := NewSymbolTable()

	if reg := st.EnsureReg("a"); reg != "x12" {
		t.Errorf("first register = %s, want x12", reg)
	}
	if reg := st.EnsureReg("b"); reg != "x13" {
		t.Errorf("second register = %s, want x13", reg)
	}
	if reg := st.EnsureReg("a"); reg != "x12" {
		t.Errorf("redeclared register = %s, want x12", reg)
	}

	// heap allocations always get a fresh register
	if reg := st.BindFresh("a"); reg != "x14" {
		t.Errorf("rebound register = %s, want x14", reg)
	}
	if reg, _ := st.Register("a"); reg != "x14" {
		t.Errorf("lookup after rebind = %s, want x14", reg)
	}

	if _, ok := st.Register("missing"); ok {
		t.Error("lookup of unknown name succeeded")
	}
}

func TestSymbolTableFieldOffsets(t *testing.T) {
	st := NewSymbolTable()
	st.DefineClass("Point", []string{"x", "y", "z"})

	tests := []struct {
		class, field string
		want         int
	}{
		{"Point", "x", 0},
		{"Point", "y", 8},
		{"Point", "z", 16},
		{"Point", "missing", 0},
		{"Nowhere", "x", 0},
	}
	for _, tt := range tests {
		if got := st.FieldOffset(tt.class, tt.field); got != tt.want {
			t.Errorf("FieldOffset(%s, %s) = %d, want %d", tt.class, tt.field, got, tt.want)
		}
	}

	fields, ok := st.ClassFields("Point")
	if !ok || len(fields) != 3 {
		t.Errorf("ClassFields(Point) = %v, %v", fields, ok)
	}
}

func TestSymbolTableLabels(t *testing.T) {
	st := NewSymbolTable()
	for want := 0; want < 3; want++ {
		if got := st.NewLabel(); got != want {
			t.Errorf("NewLabel() = %d, want %d", got, want)
		}
	}
}

func TestSymbolTableString(t *testing.T) {
	st := NewSymbolTable()
	st.EnsureReg("count")
	st.DefineClass("Point", []string{"x", "y"})
	st.BindFresh("p")
	st.BindObject("p", "Point")

	dump := st.String()
	assertContains(t, dump, "count")
	assertContains(t, dump, "x12")
	assertContains(t, dump, "(object of Point)")
	assertContains(t, dump, "Point")
	assertContains(t, dump, "16 bytes")
}
