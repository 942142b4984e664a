package memory

import (
	"context"
	"testing"
)

func TestPresenceLifecycle(t *testing.T) {
	ctx := context.Background()
	presence := NewPresence()

	_ = presence.MarkLive(ctx, "s2", "a")
	_ = presence.MarkLive(ctx, "s1", "b")
	_ = presence.MarkLive(ctx, "s1", "c")
	if live, _ := presence.IsLive(ctx, "s1"); !live {
		t.Fatalf("expected s1 live")
	}
	if ids, _ := presence.LiveSessions(ctx); len(ids) != 2 || ids[0] != "s1" {
		t.Fatalf("expected sorted [s1 s2], got %v", ids)
	}

	_ = presence.Clear(ctx, "s1", "b")
	if live, _ := presence.IsLive(ctx, "s1"); !live {
		t.Fatalf("expected s1 live while c remains")
	}
	_ = presence.Clear(ctx, "s1", "c")
	if live, _ := presence.IsLive(ctx, "s1"); live {
		t.Fatalf("expected s1 cleared")
	}
	// clearing an unknown socket is harmless
	_ = presence.Clear(ctx, "s9", "x")
}
