package main

import (
	"strings"
	"testing"

	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

func TestRenderNamespace(t *testing.T) {
	ns := &registry.Namespace{
		Account: "alice",
		Folders: []*model.Folder{{Name: "Docs"}, {Name: "Empty"}},
		Files: []*model.FileRecord{
			{Token: 1, Folder: "Docs", DisplayName: "a.txt"},
			{Token: 2, Folder: "Docs", DisplayName: "b.txt"},
			{Token: 7, Folder: model.Unfiled, DisplayName: "gift.png"},
		},
	}

	got := renderNamespace(ns)

	if !strings.HasPrefix(got, "alice\n") {
		t.Errorf("tree does not start with the account:\n%s", got)
	}
	for _, want := range []string{"── Docs", "── #1 a.txt", "── #2 b.txt", "── Empty", "── " + unfiledLabel, "── #7 gift.png"} {
		if !strings.Contains(got, want) {
			t.Errorf("tree missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "#2 b.txt") > strings.Index(got, "Empty") {
		t.Errorf("files not nested under their folder:\n%s", got)
	}
}

func TestRenderNamespace_NoUnfiledNode(t *testing.T) {
	ns := &registry.Namespace{
		Account: "bob",
		Folders: []*model.Folder{{Name: "Docs"}},
	}
	if got := renderNamespace(ns); strings.Contains(got, unfiledLabel) {
		t.Errorf("empty unfiled node rendered:\n%s", got)
	}
}
