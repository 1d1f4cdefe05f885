package domain

import "testing"

func TestCategory_Properties(t *testing.T) {
	tests := []struct {
		cat        Category
		cadence    CadenceType
		selector   string
		collateral bool
	}{
		{ShortCadenceTarget, ShortCadence, "sct", false},
		{LongCadenceTarget, LongCadence, "lct", false},
		{Background, LongCadence, "bgp", false},
		{ShortCadenceCollateral, ShortCadence, "scc", true},
		{LongCadenceCollateral, LongCadence, "lcc", true},
	}
	for _, tt := range tests {
		t.Run(tt.cat.String(), func(t *testing.T) {
			if got := tt.cat.CadenceType(); got != tt.cadence {
				t.Errorf("CadenceType() = %v, want %v", got, tt.cadence)
			}
			if got := tt.cat.MappingSelector(); got != tt.selector {
				t.Errorf("MappingSelector() = %q, want %q", got, tt.selector)
			}
			if got := tt.cat.IsCollateral(); got != tt.collateral {
				t.Errorf("IsCollateral() = %v, want %v", got, tt.collateral)
			}
			parsed, err := ParseCategory(tt.cat.String())
			if err != nil || parsed != tt.cat {
				t.Errorf("ParseCategory(%q) = %v, %v", tt.cat.String(), parsed, err)
			}
		})
	}
}

func TestCategoriesFor(t *testing.T) {
	if got := len(CategoriesFor(CadenceAll)); got != 5 {
		t.Errorf("CategoriesFor(all) = %d categories, want 5", got)
	}
	for _, c := range CategoriesFor(CadenceLongOnly) {
		if c.CadenceType() != LongCadence {
			t.Errorf("long-only includes %v", c)
		}
	}
	for _, c := range CategoriesFor(CadenceShortOnly) {
		if c.CadenceType() != ShortCadence {
			t.Errorf("short-only includes %v", c)
		}
	}
}

func TestParseCadenceOption(t *testing.T) {
	for in, want := range map[string]CadenceOption{
		"all":        CadenceAll,
		"short":      CadenceShortOnly,
		"long-only":  CadenceLongOnly,
		"short-only": CadenceShortOnly,
	} {
		got, err := ParseCadenceOption(in)
		if err != nil || got != want {
			t.Errorf("ParseCadenceOption(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCadenceOption("hourly"); err == nil {
		t.Error("ParseCadenceOption(hourly) succeeded, want error")
	}
}

func TestNewStorageID_Deterministic(t *testing.T) {
	r := Region{Module: 2, Output: 1}
	seen := make(map[StorageID]Purpose)
	for _, p := range Purposes {
		a := NewStorageID(r, LongCadenceTarget, p, 10, 20)
		b := NewStorageID(r, LongCadenceTarget, p, 10, 20)
		if a != b {
			t.Errorf("NewStorageID not deterministic for %v: %q != %q", p, a, b)
		}
		if prev, ok := seen[a]; ok {
			t.Errorf("purposes %v and %v share id %q", prev, p, a)
		}
		seen[a] = p
	}
	if NewStorageID(r, LongCadenceTarget, PurposeRaw, 10, 20) == NewStorageID(r, Background, PurposeRaw, 10, 20) {
		t.Error("target and background pixels share a storage id")
	}
	if NewStorageID(r, LongCadenceTarget, PurposeRaw, 10, 20) == NewStorageID(r, ShortCadenceTarget, PurposeRaw, 10, 20) {
		t.Error("long and short cadence pixels share a storage id")
	}
}
