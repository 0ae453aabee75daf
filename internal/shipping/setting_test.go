package shipping

import "testing"

func TestClassifyDestination(t *testing.T) {
	s := Setting{
		LocalAreas:    []string{"Jakarta Selatan", "Jakarta Pusat"},
		RegionalAreas: []string{"Jawa Barat", "Banten"},
	}

	cases := []struct {
		name string
		addr Address
		want Zone
	}{
		{"city in local list", Address{City: "Jakarta Selatan", Province: "DKI Jakarta"}, ZoneLocal},
		{"case insensitive match", Address{City: "jakarta pusat"}, ZoneLocal},
		{"province in regional list", Address{City: "Bandung", Province: "Jawa Barat"}, ZoneRegional},
		{"no match", Address{City: "Denpasar", Province: "Bali"}, ZoneOther},
		{"local wins over regional", Address{City: "Jakarta Selatan", Province: "Banten"}, ZoneLocal},
		{"whitespace trimmed", Address{City: "  Jakarta Pusat  "}, ZoneLocal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.ClassifyDestination(tc.addr); got != tc.want {
				t.Fatalf("zone = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyDestinationEmptyLists(t *testing.T) {
	var s Setting
	if got := s.ClassifyDestination(Address{City: "Jakarta"}); got != ZoneOther {
		t.Fatalf("zone = %s, want other", got)
	}
}

func TestAvailability(t *testing.T) {
	s := Setting{Enabled: true, EnableCOD: true, EnableExpress: true}
	if !s.CODAvailable() || !s.ExpressAvailable() {
		t.Fatal("expected COD and express available")
	}
	s.Enabled = false
	if s.CODAvailable() || s.ExpressAvailable() {
		t.Fatal("disabled shipping must disable COD and express")
	}
}
