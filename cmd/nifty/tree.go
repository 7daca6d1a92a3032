package main

import (
	"fmt"

	"github.com/disiqueira/gotree/v3"

	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

const unfiledLabel = "(unfiled)"

// renderNamespace draws the account's folders with their files underneath.
// Unfiled records hang off a separate node that only appears when non-empty.
func renderNamespace(ns *registry.Namespace) string {
	root := gotree.New(string(ns.Account))
	for _, f := range ns.Folders {
		node := root.Add(f.Name)
		for _, rec := range ns.FilesIn(f.Name) {
			node.Add(fileLabel(rec))
		}
	}
	if unfiled := ns.FilesIn(model.Unfiled); len(unfiled) > 0 {
		node := root.Add(unfiledLabel)
		for _, rec := range unfiled {
			node.Add(fileLabel(rec))
		}
	}
	return root.Print()
}

func fileLabel(rec *model.FileRecord) string {
	return fmt.Sprintf("#%s %s", rec.Token, rec.DisplayName)
}
