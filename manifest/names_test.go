package manifest

import "testing"

func TestInternalName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Main", "Main"},
		{"demo.Main", "demo/Main"},
		{"demo/app/Main", "demo/app/Main"},
		{"demo.app.Main.class", "demo/app/Main"},
		{"", ""},
	}

	for _, tc := range tests {
		got := InternalName(tc.input)
		if got != tc.want {
			t.Errorf("InternalName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsReservedClass(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"java/lang/Object", true},
		{"java/lang/Thing", true},
		{"uj/lang/RT", true},
		{"java/lang/ref/Weak", false},
		{"java/util/List", false},
		{"demo/Main", false},
		{"javax/lang/X", false},
	}
	for _, tc := range tests {
		if got := IsReservedClass(tc.name); got != tc.want {
			t.Errorf("IsReservedClass(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
