package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "1", want: Version{Major: 1}},
		{in: "2.7", want: Version{Major: 2, Minor: 7}},
		{in: " 3.0 ", want: Version{Major: 3}},
		{in: "", wantErr: true},
		{in: "a.1", wantErr: true},
		{in: "1.b", wantErr: true},
		{in: "-1.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVersion) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidVersion", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	if MustParse("1.2").Compare(MustParse("1.10")) != -1 {
		t.Fatal("1.2 should sort before 1.10")
	}
	if MustParse("2.0").Compare(MustParse("1.9")) != 1 {
		t.Fatal("2.0 should sort after 1.9")
	}
	if MustParse("3.1").Compare(New(3, 1)) != 0 {
		t.Fatal("equal versions should compare 0")
	}
	if New(4, 2).String() != "4.2" {
		t.Fatalf("String() = %s", New(4, 2).String())
	}
}
