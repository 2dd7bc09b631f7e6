package classfile

import (
	"bytes"
	"errors"
	"testing"
)

func TestPackUnpack(t *testing.T) {
	classes := [][]byte{[]byte("first"), bytes.Repeat([]byte{7}, 300)}
	b, err := Pack(classes)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(b) != 3+5+3+300+3 {
		t.Fatalf("container length = %d", len(b))
	}
	if !bytes.Equal(b[len(b)-3:], []byte{0, 0, 0}) {
		t.Error("missing terminator record")
	}
	got, err := Unpack(b)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "first" || len(got[1]) != 300 {
		t.Errorf("Unpack = %d records", len(got))
	}
}

func TestRecordsStopsAtTerminator(t *testing.T) {
	b := []byte{0, 0, 1, 'x', 0, 0, 0, 0xFF, 0xFF}
	recs, err := Records(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Offset != 3 || recs[0].Length != 1 {
		t.Errorf("Records = %+v", recs)
	}
}

func TestRecordsTruncated(t *testing.T) {
	if _, err := Records([]byte{0, 0, 9, 1, 2}); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestPackRejectsEmptyRecord(t *testing.T) {
	if _, err := Pack([][]byte{{}}); err == nil {
		t.Error("expected error for empty class")
	}
}
