package gcs

import "testing"

func TestSplitURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"simple", "gs://statements/u1/file.csv", "statements", "u1/file.csv", false},
		{"nested path", "gs://b/a/b/c.csv", "b", "a/b/c.csv", false},
		{"missing scheme", "statements/u1/file.csv", "", "", true},
		{"no object", "gs://statements", "", "", true},
		{"empty object", "gs://statements/", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := SplitURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("SplitURI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestObjectURIRoundTrip(t *testing.T) {
	uri := ObjectURI("statements", "u1/2024/file.csv")
	bucket, object, err := SplitURI(uri)
	if err != nil {
		t.Fatalf("SplitURI(%q) returned error: %v", uri, err)
	}
	if bucket != "statements" || object != "u1/2024/file.csv" {
		t.Errorf("round trip = (%q, %q)", bucket, object)
	}
}

func TestFilenameFromURI(t *testing.T) {
	if got := FilenameFromURI("gs://bucket/folder/statement.csv"); got != "statement.csv" {
		t.Errorf("FilenameFromURI = %q, want statement.csv", got)
	}
	if got := FilenameFromURI("gs://bucket-only"); got != "bucket-only" {
		t.Errorf("FilenameFromURI = %q, want bucket-only", got)
	}
}
