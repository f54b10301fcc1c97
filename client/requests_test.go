package client

import (
	"reflect"
	"testing"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"a/b/c", []string{"a", "b", "c"}},
		{"data/log.bin", []string{"data", "log.bin"}},
		{"", nil},
		{"/", nil},
		{"/data/", []string{"data"}},
		{"a//b", []string{"a", "b"}},
	}

	for _, tc := range tests {
		if got := splitPath(tc.path); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestRequestsRejectedBeforeMount(t *testing.T) {
	s := NewSession("127.0.0.1:1", nil)
	// Never started: state is Disconnected.

	if tag := s.RequestWalk("x", WalkAny); tag != 0xFFFF {
		t.Fatalf("walk before mount = %d, want NOTAG", tag)
	}
	if tag := s.RequestOpen(1, 0); tag != 0xFFFF {
		t.Fatalf("open before mount = %d, want NOTAG", tag)
	}
}
