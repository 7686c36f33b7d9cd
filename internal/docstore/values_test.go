package docstore

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"int vs float equal", 3, float64(3), 0},
		{"int64 less", int64(2), 3, -1},
		{"strings", "2024-01-10", "2024-01-09", 1},
		{"bools", false, true, -1},
		{"nil vs nil", nil, nil, 0},
		{"nil vs value", nil, "a", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAsInt(t *testing.T) {
	for _, v := range []any{3, int64(3), float64(3), "3"} {
		if got := AsInt(v); got != 3 {
			t.Errorf("AsInt(%T) = %d, want 3", v, got)
		}
	}
	if got := AsInt(nil); got != 0 {
		t.Errorf("AsInt(nil) = %d, want 0", got)
	}
}

func TestApply(t *testing.T) {
	docs := []Document{
		{ID: "a", Data: Data{"ownerId": "u1", "day": "2024-01-10"}},
		{ID: "b", Data: Data{"ownerId": "u1", "day": "2024-01-12"}},
		{ID: "c", Data: Data{"ownerId": "u2", "day": "2024-01-11"}},
		{ID: "d", Data: Data{"ownerId": "u1", "day": "2024-01-11"}},
		{ID: "e", Data: Data{"day": "2024-01-11"}},
	}

	got := Apply(docs, Query{
		Collection: "completions",
		Filters: []Filter{
			Eq("ownerId", "u1"),
			{Field: "day", Op: OpGreaterEq, Value: "2024-01-11"},
		},
		OrderBy: []Order{{Field: "day", Descending: true}},
	})
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "d" {
		t.Fatalf("Apply() = %v, want [b d]", ids(got))
	}

	limited := Apply(docs, Query{Collection: "completions", OrderBy: []Order{{Field: "day"}}, Limit: 2})
	if len(limited) != 2 || limited[0].ID != "a" {
		t.Errorf("Apply(limit) = %v, want a first and two results", ids(limited))
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"valid", Query{Collection: "habits", Filters: []Filter{Eq("ownerId", "u1")}}, false},
		{"injection in field", Query{Collection: "habits", Filters: []Filter{Eq("ownerId'); DROP", "x")}}, true},
		{"bad collection", Query{Collection: "habits;"}, true},
		{"bad operator", Query{Collection: "habits", Filters: []Filter{{Field: "a", Op: "!=", Value: 1}}}, true},
		{"bad order", Query{Collection: "habits", OrderBy: []Order{{Field: "a b"}}}, true},
		{"negative limit", Query{Collection: "habits", Limit: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.q.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
