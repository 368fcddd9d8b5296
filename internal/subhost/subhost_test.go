package subhost

import "testing"

func TestParent(t *testing.T) {
	cases := []struct {
		host   string
		want   string
		wantOk bool
	}{
		{"www.example.com", "example.com", true},
		{"a.b.example.com", "b.example.com", true},
		{"example.com", "", false},
		{"com", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := Parent(c.host)
		if ok != c.wantOk || got != c.want {
			t.Errorf("Parent(%q) = (%q, %v), want (%q, %v)", c.host, got, ok, c.want, c.wantOk)
		}
	}
}
