package ids

import "testing"

func TestNewIsUniqueAndOrdered(t *testing.T) {
	prev := ""
	for i := 0; i < 1000; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if id <= prev {
			t.Fatalf("ids must be strictly increasing: %q after %q", id, prev)
		}
		prev = id
	}
}
