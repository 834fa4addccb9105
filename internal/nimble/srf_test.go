package nimble

import "testing"

func TestFileTypeJSONRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		typ  FileType
		wire string
	}{
		{FileTypePlain, `"SwiftyFile"`},
		{FileTypePbo, `"SwiftyPboFile"`},
	} {
		raw, err := tc.typ.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(raw) != tc.wire {
			t.Fatalf("got %s, want %s", raw, tc.wire)
		}

		var back FileType
		if err := back.UnmarshalJSON(raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if back != tc.typ {
			t.Fatalf("round trip mismatch: got %v, want %v", back, tc.typ)
		}
	}
}

func TestFileUnmarshalNormalizesBackslashPaths(t *testing.T) {
	var f File
	data := []byte(`{"Path":"addons\\config.bin","Length":0,"Checksum":"D41D8CD98F00B204E9800998ECF8427E","Type":"SwiftyFile","Parts":[]}`)
	if err := f.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Path != "addons/config.bin" {
		t.Fatalf("got path %q", f.Path)
	}
}

func TestSortFilesOrdersByUppercasedPath(t *testing.T) {
	files := []File{{Path: "zeta.pbo"}, {Path: "Alpha.pbo"}, {Path: "beta.pbo"}}
	sortFiles(files)
	got := []string{files[0].Path, files[1].Path, files[2].Path}
	want := []string{"Alpha.pbo", "beta.pbo", "zeta.pbo"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}
}

func TestAggregateFileChecksumEmptyParts(t *testing.T) {
	got := aggregateFileChecksum(nil)
	if got != "D41D8CD98F00B204E9800998ECF8427E" {
		t.Fatalf("empty-parts checksum = %q, want MD5 of empty string", got)
	}
}

func TestAggregateModChecksumStableUnderFileOrderPermutation(t *testing.T) {
	files := []File{
		{Path: "a.paa", Checksum: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{Path: "b.paa", Checksum: "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"},
	}
	sorted := append([]File(nil), files...)
	sortFiles(sorted)
	want := aggregateModChecksum(sorted)

	reversed := []File{files[1], files[0]}
	sortFiles(reversed)
	got := aggregateModChecksum(reversed)

	if got != want {
		t.Fatalf("mod checksum depends on discovery order: got %s, want %s", got, want)
	}
}

func TestGenerateInvalidModHasZeroChecksumAndNoFiles(t *testing.T) {
	remote := Mod{Name: "@ace", Checksum: MustDigest("787662722D70C36DF28CD1D5EE8D8E86")}
	invalid := GenerateInvalidMod(remote)
	if !invalid.Checksum.IsZero() {
		t.Fatal("invalid mod checksum should be zero")
	}
	if invalid.Files != nil {
		t.Fatal("invalid mod should have no files")
	}
	if invalid.Name != remote.Name {
		t.Fatalf("got name %q, want %q", invalid.Name, remote.Name)
	}
}
