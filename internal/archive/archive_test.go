package archive

import (
	"testing"

	"aegis-soar/internal/config"
)

func TestKeyShardsByDay(t *testing.T) {
	a := &Archiver{cfg: config.S3Config{Prefix: "raw/"}}

	// 2023-11-14T22:13:20Z
	got := a.Key("ev-1", 1700000000)
	want := "raw/2023/11/14/ev-1.json"
	if got != want {
		t.Fatalf("Key = %s, want %s", got, want)
	}
}

func TestKeyWithoutPrefix(t *testing.T) {
	a := &Archiver{cfg: config.S3Config{}}
	if got := a.Key("ev-2", 0); got != "1970/01/01/ev-2.json" {
		t.Fatalf("Key = %s", got)
	}
}
