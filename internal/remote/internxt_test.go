package remote

import "testing"

func TestQuoteDoesNotEscapeEmbeddedQuotes(t *testing.T) {
	got := quote(`foo"bar`)
	want := `"foo"bar"`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestIsFailureOutput(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"clean success", "Uploaded 1 file\nDone.", false},
		{"error keyword", "Error: could not connect", true},
		{"failed keyword", "upload failed", true},
		{"case insensitive", "UPLOAD FAILED", true},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isFailureOutput(tc.in); got != tc.want {
				t.Fatalf("isFailureOutput(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseJSONListing_Array(t *testing.T) {
	out := `[{"name":"a.txt","path":"/a.txt","size":10,"isFolder":false},{"name":"sub","path":"/sub","size":0,"isFolder":true}]`
	entries, ok := parseJSONListing(out)
	if !ok {
		t.Fatal("expected JSON array to parse")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "a.txt" || entries[0].SizeBytes != 10 || entries[0].IsFolder {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].IsFolder {
		t.Fatalf("expected second entry to be a folder: %+v", entries[1])
	}
}

func TestParseJSONListing_SingleObject(t *testing.T) {
	out := `{"name":"a.txt","path":"/a.txt","size":10,"isFolder":false}`
	entries, ok := parseJSONListing(out)
	if !ok {
		t.Fatal("expected JSON object to parse")
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParseJSONListing_FallsBackOnInvalidJSON(t *testing.T) {
	if _, ok := parseJSONListing("not json at all"); ok {
		t.Fatal("expected non-JSON output to fail JSON parsing")
	}
}

func TestParseLineListing(t *testing.T) {
	out := "a.txt 123 bytes\nsubdir/\nb.txt 4096 bytes\n"
	entries := parseLineListing(out)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "a.txt" || entries[0].SizeBytes != 123 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].IsFolder || entries[1].Name != "subdir" {
		t.Fatalf("unexpected folder entry: %+v", entries[1])
	}
	if entries[2].Name != "b.txt" || entries[2].SizeBytes != 4096 {
		t.Fatalf("unexpected third entry: %+v", entries[2])
	}
}

func TestNewDefaultsToNoOpLogger(t *testing.T) {
	c := New(nil)
	if c.logger == nil {
		t.Fatal("expected New(nil) to install a non-nil logger")
	}
	if c.binary != "internxt" {
		t.Fatalf("expected binary 'internxt', got %q", c.binary)
	}
}
