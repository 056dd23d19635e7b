package notify

import (
	"testing"
	"time"
)

func TestEventCodec(t *testing.T) {
	e := GraphRebuilt{Version: "v7", Source: "file", Path: "/data/graph.json", Nodes: 12, BuiltAt: time.Unix(1700000000, 0).UTC()}
	data, err := encode(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.BuiltAt.Equal(e.BuiltAt) {
		t.Fatalf("built_at = %v, want %v", got.BuiltAt, e.BuiltAt)
	}
	got.BuiltAt = e.BuiltAt
	if got != e {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}

func TestEventValidation(t *testing.T) {
	bad := []GraphRebuilt{
		{Source: "db"},
		{Version: "v1", Source: "s3"},
		{Version: "v1", Source: "file"},
	}
	for _, e := range bad {
		if _, err := encode(e); err == nil {
			t.Errorf("encode(%+v) accepted", e)
		}
	}
	if _, err := decode([]byte("not json")); err == nil {
		t.Error("decode accepted garbage")
	}
	if _, err := decode([]byte(`{"version":"v1","source":"db"}`)); err != nil {
		t.Errorf("db event rejected: %v", err)
	}
}
