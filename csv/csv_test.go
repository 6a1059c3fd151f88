package csv

import (
	"bytes"
	"encoding/csv"
	"runtime"
	"testing"

	"golang.org/x/xerrors"
)

func TestRecorderNil(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := Encoder{w: csv.NewWriter(buf)}

	if err := enc.Encode(nil); err == nil {
		t.Fatalf("%+v\n", err)
	}
}

type Msg struct{}

func (m Msg) Record() []string {
	return []string{"37", "ADV_IND"}
}

func (m Msg) Header() []string {
	return []string{"channel", "type"}
}

func TestRecorder(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := Encoder{w: csv.NewWriter(buf)}

	if err := enc.Encode(Msg{}); err != nil {
		t.Fatalf("%+v\n", err)
	}

	if buf.String() != "37,ADV_IND\n" {
		t.Fatalf("%q\n", buf.String())
	}
}

func TestHeader(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	enc.WriteHeader = true

	for idx := 0; idx < 2; idx++ {
		if err := enc.Encode(Msg{}); err != nil {
			t.Fatalf("%+v\n", err)
		}
	}

	if expected := "channel,type\n37,ADV_IND\n37,ADV_IND\n"; buf.String() != expected {
		t.Fatalf("%q\n", buf.String())
	}
}

type NonRecorder struct{}

func TestNonRecorder(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := Encoder{w: csv.NewWriter(buf)}

	err := enc.Encode(NonRecorder{})

	var runtimeErr runtime.Error
	if !xerrors.As(err, &runtimeErr) {
		t.Fatalf("%+v\n", runtimeErr)
	}
}
