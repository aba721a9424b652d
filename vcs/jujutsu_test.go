package vcs

import "testing"

func TestParseJJWorkspaceListMap(t *testing.T) {
	output := "default: /home/user/repo\nfeature-x: /home/user/feature-x\n\nnoise line without separator\n"
	workspaces := parseJJWorkspaceListMap(output)
	if len(workspaces) != 2 {
		t.Fatalf("expected 2 workspaces, got %d: %v", len(workspaces), workspaces)
	}
	if workspaces["default"] != "/home/user/repo" {
		t.Fatalf("unexpected default path: %s", workspaces["default"])
	}
	if workspaces["feature-x"] != "/home/user/feature-x" {
		t.Fatalf("unexpected feature-x path: %s", workspaces["feature-x"])
	}
}

func TestParseSideDocument_CorruptBytesResetToEmpty(t *testing.T) {
	doc := parseSideDocument([]byte("{not json at all"))
	if doc.Workspaces == nil || len(doc.Workspaces) != 0 {
		t.Fatalf("corrupt side registry should reset to empty, got %+v", doc)
	}
	doc = parseSideDocument(nil)
	if doc.Workspaces == nil {
		t.Fatalf("nil bytes should yield usable empty document")
	}
}
