package dispatch

import "testing"

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusReported, StatusAssigned, StatusProcessing, StatusCompleted}
	legal := map[Status]Status{
		StatusReported:   StatusAssigned,
		StatusAssigned:   StatusProcessing,
		StatusProcessing: StatusCompleted,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[from] == to
			if got := from.CanAdvanceTo(to); got != want {
				t.Errorf("CanAdvanceTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusUnfinished(t *testing.T) {
	for _, st := range []Status{StatusReported, StatusAssigned, StatusProcessing} {
		if !st.Unfinished() {
			t.Errorf("%s should be unfinished", st)
		}
	}
	if StatusCompleted.Unfinished() {
		t.Error("completed should be finished")
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]struct {
		kind Kind
		ok   bool
	}{
		"dispute":     {KindDispute, true},
		" Legal_Aid ": {KindLegalAid, true},
		"":            {"", false},
		"complaint":   {"", false},
	}
	for in, want := range cases {
		kind, ok := ParseKind(in)
		if kind != want.kind || ok != want.ok {
			t.Errorf("ParseKind(%q) = %q, %v", in, kind, ok)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if st, ok := ParseStatus(" Processing "); !ok || st != StatusProcessing {
		t.Fatalf("ParseStatus = %q, %v", st, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Fatal("archived should not parse")
	}
}
