package broker

import (
	"fmt"
	"testing"
)

func TestCodeForKind_Stable(t *testing.T) {
	cases := map[Kind]int{
		ToolNotFound:     -32000,
		InvalidArguments: -32001,
		Internal:         -32014,
	}
	for kind, want := range cases {
		if got := CodeForKind(kind); got != want {
			t.Errorf("CodeForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestCodeForKind_Unknown(t *testing.T) {
	if got, want := CodeForKind(Kind("bogus")), CodeForKind(Internal); got != want {
		t.Errorf("CodeForKind(bogus) = %d, want %d", got, want)
	}
}

func TestKind_Retryable(t *testing.T) {
	retryable := []Kind{UpstreamError, UpstreamRateLimited}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s.Retryable() = false, want true", k)
		}
	}
	terminal := []Kind{ToolNotFound, InvalidArguments, Cancelled, NotConfigured}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s.Retryable() = true, want false", k)
		}
	}
}

func TestError_Error(t *testing.T) {
	err := New(NoClientAvailable, "no client connected for tool %q", "navigate_to_position")
	want := `NoClientAvailable: no client connected for tool "navigate_to_position"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestError_WithDetails(t *testing.T) {
	base := New(InvalidArguments, "missing required property")
	withDetails := base.WithDetails(map[string]string{"property": "dna"})
	if base.Details != nil {
		t.Errorf("base.Details = %v, want nil (receiver must not mutate)", base.Details)
	}
	if withDetails.Details == nil {
		t.Fatal("withDetails.Details = nil, want non-nil")
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", New(ClientTimeout, "timed out"))
	if got := KindOf(wrapped); got != ClientTimeout {
		t.Errorf("KindOf(wrapped) = %s, want %s", got, ClientTimeout)
	}
	if got := KindOf(fmt.Errorf("plain")); got != Internal {
		t.Errorf("KindOf(plain) = %s, want %s", got, Internal)
	}
}
