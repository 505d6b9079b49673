package jsonproj

import (
	"encoding/json"
	"testing"
)

func TestProject(t *testing.T) {
	result, err := Project(`{id,name}`, []byte(`{"id":1,"name":"a","junk":[1,2,3]}`))
	if err != nil {
		t.Fatalf("Project: %s", err)
	}
	data, _ := json.Marshal(result)
	if string(data) != `{"id":1,"name":"a"}` {
		t.Errorf("Project: got %s", data)
	}
}

func TestProjectBadQuery(t *testing.T) {
	if _, err := Project(`{id`, []byte(`{}`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProjectRaw(t *testing.T) {
	raws, err := ProjectRaw(`{id}`, []byte(`[{"id": 1}, {"id": 2, "x": null}]`))
	if err != nil {
		t.Fatalf("ProjectRaw: %s", err)
	}
	want := []string{`{"id": 1}`, `{"id": 2, "x": null}`}
	if len(raws) != len(want) {
		t.Fatalf("raws: got %d, want %d", len(raws), len(want))
	}
	for i := range want {
		if string(raws[i]) != want[i] {
			t.Errorf("raw %d: got %s, want %s", i, raws[i], want[i])
		}
	}
}
