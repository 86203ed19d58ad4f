package bot

import (
	"testing"
	"time"

	"cs2kz-api/internal/audit"
)

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	type tcase struct {
		event audit.Event
		want  string
	}

	tests := map[string]tcase{
		"no_targets": {
			event: audit.Event{Name: "admin.updated", ActorID: 1, Timestamp: at},
			want:  "[2026-03-04T05:06:07Z] admin.updated by 1",
		},
		"targets": {
			event: audit.Event{Name: "ban.reverted", ActorID: 9, TargetIDs: []uint64{4, 12}, Timestamp: at},
			want:  "[2026-03-04T05:06:07Z] ban.reverted by 9 on 4, 12",
		},
		"extra_sorted": {
			event: audit.Event{
				Name:      "ban.created",
				ActorID:   2,
				TargetIDs: []uint64{3},
				Timestamp: at,
				Extra:     map[string]any{"reason": "cheating", "player_id": 765},
			},
			want: "[2026-03-04T05:06:07Z] ban.created by 2 on 3\nplayer_id: 765\nreason: cheating",
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := FormatEvent(tc.event); got != tc.want {
				t.Errorf("FormatEvent() = %q, want %q", got, tc.want)
			}
		})
	}
}
