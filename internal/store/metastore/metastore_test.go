package metastore

import (
	"reflect"
	"strings"
	"testing"
)

func TestBookRowRoundTripsEndMarkers(t *testing.T) {
	markers := []string{"끝", "완", "[fine]"}

	row := bookRow{
		ID:              7,
		Series:          "Tower of God",
		Volume:          3,
		Title:           "신 왕",
		KnownEndMarkers: strings.Join(markers, markerSeparator),
	}

	b := row.book()
	if !reflect.DeepEqual(b.KnownEndMarkers, markers) {
		t.Fatalf("KnownEndMarkers = %v, want %v", b.KnownEndMarkers, markers)
	}
	if b.ID != 7 || b.Series != "Tower of God" || b.Volume != 3 || b.Title != "신 왕" {
		t.Fatalf("book = %+v", b)
	}
}

func TestBookRowEmptyMarkers(t *testing.T) {
	b := bookRow{Title: "Solo Leveling"}.book()
	if len(b.KnownEndMarkers) != 0 {
		t.Fatalf("KnownEndMarkers = %v, want empty", b.KnownEndMarkers)
	}
}
