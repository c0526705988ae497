package bundle

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	hmtx := int16(5)
	want := &Bundle{
		Flags: HasHmtx,
		Records: []Record{
			{GlyphID: 3, Hmtx: &hmtx, Offset: 10, Length: 4, Bytes: []byte{1, 2, 3, 4}},
			{GlyphID: 4, Hmtx: new(int16), Offset: 14, Length: 0, Bytes: nil},
		},
	}

	data := want.Encode()
	got, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTruncated(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0, 0, 0, 1})) // claims 1 record, has none
	if err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestParseEmptyBundle(t *testing.T) {
	b := &Bundle{}
	got, err := Parse(bytes.NewReader(b.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Records) != 0 {
		t.Errorf("expected no records, got %d", len(got.Records))
	}
}
