package store

import "testing"

func TestDeriveTableName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Pipeline", "my_pipeline"},
		{"2024 sales", "t_2024_sales"},
		{"users@v2!", "usersv2"},
		{"Demo Orders", "demo_orders"},
		{"Customers", "customers"},
	}
	for _, c := range cases {
		if got := DeriveTableName(c.in); got != c.want {
			t.Errorf("DeriveTableName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDeriveTableNameIsPure(t *testing.T) {
	name := "Repeated Call"
	first := DeriveTableName(name)
	for i := 0; i < 5; i++ {
		if got := DeriveTableName(name); got != first {
			t.Errorf("DeriveTableName is not pure: call %d = %q, want %q", i, got, first)
		}
	}
}
