package models

import "testing"

func TestParseGroupIDRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 1234567890, -1001234567890} {
		got, err := ParseGroupID(FormatGroupID(id))
		if err != nil {
			t.Fatalf("ParseGroupID(%d): %v", id, err)
		}
		if got != id {
			t.Errorf("ParseGroupID(FormatGroupID(%d)) = %d", id, got)
		}
	}
}

func TestParseGroupIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "12x", "@channel"} {
		if _, err := ParseGroupID(s); err == nil {
			t.Errorf("ParseGroupID(%q) должен возвращать ошибку", s)
		}
	}
}

func TestSessionGroupRef(t *testing.T) {
	g := SessionGroup{GroupID: "1234567890", AccessHash: 42, IsChannel: true}
	ref, err := g.Ref()
	if err != nil {
		t.Fatalf("Ref: %v", err)
	}
	if ref.ID != 1234567890 || ref.AccessHash != 42 || !ref.IsChannel {
		t.Errorf("ref = %+v", ref)
	}

	bad := SessionGroup{GroupID: "мусор"}
	if _, err := bad.Ref(); err == nil {
		t.Error("Ref для некорректного id должен возвращать ошибку")
	}
}
