package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	coap "github.com/ironzhang/go-mcoap"
)

func TestParseOptions(t *testing.T) {
	var opts Options
	fs := flag.NewFlagSet("coap-curl", flag.ContinueOnError)
	args := []string{"-X", "put", "-con", "-data", "true", "-query", "a=1", "-query", "b=2", "coap://localhost/toggle"}
	if err := opts.Parse(fs, args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got, want := opts.Method, coap.PUT; got != want {
		t.Errorf("method: %v != %v", got, want)
	}
	if !opts.Confirmable {
		t.Errorf("confirmable: false")
	}

	req, err := MakeRequest(&opts)
	if err != nil {
		t.Fatalf("make request: %v", err)
	}
	if got, want := req.URL.String(), "coap://localhost:5683/toggle?a=1&b=2"; got != want {
		t.Errorf("url: %q != %q", got, want)
	}
	if got, want := string(req.Payload), "true"; got != want {
		t.Errorf("payload: %q != %q", got, want)
	}
	if !req.Confirmable {
		t.Errorf("request confirmable: false")
	}
}

func TestParseOptionsMulticast(t *testing.T) {
	var opts Options
	fs := flag.NewFlagSet("coap-curl", flag.ContinueOnError)
	args := []string{"-multicast", "-con", "-window", "3s", "coap://224.0.1.187/helloWorld"}
	if err := opts.Parse(fs, args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got, want := opts.Window, 3*time.Second; got != want {
		t.Errorf("window: %v != %v", got, want)
	}
	req, err := MakeRequest(&opts)
	if err != nil {
		t.Fatalf("make request: %v", err)
	}
	if req.Confirmable {
		t.Errorf("multicast request must be non-confirmable")
	}
}

func TestParseOptionsError(t *testing.T) {
	tests := [][]string{
		{},
		{"-X", "PATCH", "coap://localhost/a"},
	}
	for i, args := range tests {
		var opts Options
		fs := flag.NewFlagSet("coap-curl", flag.ContinueOnError)
		if err := opts.Parse(fs, args); err == nil {
			t.Errorf("case%d: expected error", i)
		}
	}
}

func TestMakePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("from file"), 0644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		data   string
		infile string
		want   string
	}{
		{data: "", infile: "", want: ""},
		{data: "inline", infile: path, want: "inline"},
		{data: "", infile: path, want: "from file"},
	}
	for i, tt := range tests {
		payload, err := MakePayload(tt.data, tt.infile)
		if err != nil {
			t.Fatalf("case%d: make payload: %v", i, err)
		}
		if got := string(payload); got != tt.want {
			t.Errorf("case%d: %q != %q", i, got, tt.want)
		}
	}
	if _, err := MakePayload("", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("missing file: expected error")
	}
}
