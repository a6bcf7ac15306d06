package backer_test

import (
	"errors"
	"path/filepath"
	"testing"

	"backer-go/internal/backer"
	"backer-go/internal/testutil"
)

func TestResolveMarker(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	root := filepath.Join("/", "mnt", "photos")
	markerPath := filepath.Join(root, "backer-id.json")

	t.Run("opens tree rooted at the marker's directory", func(t *testing.T) {
		fsmgr.AddFile(markerPath, []byte(`{"id": " family-photos "}`))

		tree, err := backer.ResolveMarker(fsmgr, markerPath)
		if err != nil {
			t.Fatalf("ResolveMarker() error = %v", err)
		}
		if tree.Root != root {
			t.Errorf("Root = %q, want %q", tree.Root, root)
		}
		if tree.Marker != "family-photos" {
			t.Errorf("Marker = %q, want family-photos", tree.Marker)
		}
		if tree.MarkerPath != markerPath {
			t.Errorf("MarkerPath = %q, want %q", tree.MarkerPath, markerPath)
		}
		if got, want := tree.Abs("2019/a.jpg"), filepath.Join(root, "2019", "a.jpg"); got != want {
			t.Errorf("Abs() = %q, want %q", got, want)
		}
	})

	t.Run("missing marker file is not found", func(t *testing.T) {
		_, err := backer.ResolveMarker(fsmgr, filepath.Join("/", "unmounted", "backer-id.json"))
		if !backer.IsTreeNotFound(err) {
			t.Errorf("ResolveMarker() error = %v, want tree not found", err)
		}
	})

	t.Run("other failures are not 'not found'", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			readErr error
		}{
			{name: "invalid json", content: "{not json"},
			{name: "missing id", content: `{"name": "x"}`},
			{name: "blank id", content: `{"id": "  "}`},
			{name: "unreadable", content: `{"id": "x"}`, readErr: errors.New("permission denied")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := filepath.Join("/", tt.name, "backer-id.json")
				fsmgr.AddFile(p, []byte(tt.content))
				if tt.readErr != nil {
					fsmgr.SetReadError(p, tt.readErr)
				}

				_, err := backer.ResolveMarker(fsmgr, p)
				if err == nil {
					t.Fatal("ResolveMarker() expected error, got nil")
				}
				if backer.IsTreeNotFound(err) {
					t.Errorf("ResolveMarker() error = %v, want a non-not-found error", err)
				}
				var te *backer.TreeError
				if !errors.As(err, &te) || te.Kind != backer.TreeOther {
					t.Errorf("ResolveMarker() error = %v, want TreeOther", err)
				}
			})
		}
	})
}
