package entities_test

import (
	"encoding/json"
	"testing"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
)

func TestNewTrackHasID(t *testing.T) {
	track := entities.NewTrack("https://example.com/a", "Song", "user1")

	if track.ID == "" {
		t.Error("New track should carry an id")
	}
	if track.RequestedBy != "user1" {
		t.Errorf("Expected requester user1, got %s", track.RequestedBy)
	}
}

func TestHasSource(t *testing.T) {
	if !(&entities.Track{URL: "https://x"}).HasSource() {
		t.Error("URL-only track has a source")
	}
	if !(&entities.Track{Title: "searchable"}).HasSource() {
		t.Error("Title-only track has a source (search query)")
	}
	if (&entities.Track{}).HasSource() {
		t.Error("Empty track has no source")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		track entities.Track
		want  string
	}{
		{"artist and title", entities.Track{Artist: "Daft Punk", Title: "Around the World"}, "Daft Punk - Around the World"},
		{"title only", entities.Track{Title: "Around the World"}, "Around the World"},
		{"url fallback", entities.Track{URL: "https://x"}, "https://x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDurationFormatted(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{271, "04:31"},
		{3723, "62:03"},
	}

	for _, tt := range tests {
		track := entities.Track{DurationS: tt.seconds}
		if got := track.DurationFormatted(); got != tt.want {
			t.Errorf("DurationFormatted(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := entities.NewTrack("https://x", "a", "u")
	cp := orig.Clone()

	cp.Title = "changed"
	if orig.Title == "changed" {
		t.Error("Clone must not share storage with the original")
	}

	var nilTrack *entities.Track
	if nilTrack.Clone() != nil {
		t.Error("Cloning nil should return nil")
	}
}

func TestJSONShape(t *testing.T) {
	track := entities.Track{
		ID:          "id1",
		Title:       "Song",
		URL:         "https://x",
		RequestedBy: "u1",
		Priority:    80,
		EnqueuedAt:  7,
	}

	data, err := json.Marshal(track)
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"id", "title", "url", "requested_by", "priority", "enqueued_at"} {
		if _, ok := out[key]; !ok {
			t.Errorf("Serialized track should carry %q", key)
		}
	}
	if _, ok := out["artist"]; ok {
		t.Error("Empty optional fields should be omitted")
	}
}
