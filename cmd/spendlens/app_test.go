// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

// TestAppDocComments keeps each doc comment in app.go attached to the
// declaration it describes.
func TestAppDocComments(t *testing.T) {
	file, err := parser.ParseFile(token.NewFileSet(), "app.go", nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse app.go: %v", err)
	}
	for _, decl := range file.Decls {
		var (
			name string
			doc  *ast.CommentGroup
		)
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name, doc = d.Name.Name, d.Doc
		case *ast.GenDecl:
			if len(d.Specs) != 1 {
				continue
			}
			ts, ok := d.Specs[0].(*ast.TypeSpec)
			if !ok {
				continue
			}
			name, doc = ts.Name.Name, d.Doc
		default:
			continue
		}
		if doc == nil {
			continue
		}
		text := doc.Text()
		if !strings.HasPrefix(text, name+" ") {
			t.Errorf("doc comment of %s starts %q", name, strings.SplitN(text, "\n", 2)[0])
		}
		for _, line := range strings.Split(strings.TrimSpace(text), "\n")[1:] {
			if fields := strings.Fields(line); len(fields) > 1 && fields[0] != name && isDeclName(file, fields[0]) {
				t.Errorf("doc comment of %s also describes %s", name, fields[0])
			}
		}
	}
}

// isDeclName reports whether s names a top-level declaration of file.
func isDeclName(file *ast.File, s string) bool {
	return file.Scope != nil && file.Scope.Lookup(s) != nil
}
