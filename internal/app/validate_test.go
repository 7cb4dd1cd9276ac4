package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectJSONFilesRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `{"k":"v"}`)
	mustWriteFile(t, filepath.Join(root, "b.txt"), `x`)
	mustWriteFile(t, filepath.Join(root, ".hidden.json"), `{}`)
	mustWriteFile(t, filepath.Join(root, "nested", "c.json"), `{"k":"v2"}`)

	files, err := collectJSONFiles(root, true)
	if err != nil {
		t.Fatalf("collectJSONFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 json files, got %d (%v)", len(files), files)
	}
}

func TestCollectJSONFilesNonRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `{"k":"v"}`)
	mustWriteFile(t, filepath.Join(root, "nested", "c.json"), `{"k":"v2"}`)

	files, err := collectJSONFiles(root, false)
	if err != nil {
		t.Fatalf("collectJSONFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 json file, got %d (%v)", len(files), files)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestValidatePayloadDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "ok.json"), "```json\n"+`{
		"central_idea":"El gobernador presentó el plan estatal de seguridad",
		"article_type":"informativo",
		"labels":["seguridad","gobierno","queretaro","policia","plan"],
		"mentions":[]
	}`+"\n```")
	mustWriteFile(t, filepath.Join(root, "few_labels.json"), `{
		"central_idea":"Idea",
		"article_type":"informativo",
		"labels":["uno"],
		"mentions":[]
	}`)
	mustWriteFile(t, filepath.Join(root, "broken.json"), `{"central_idea":`)

	result, err := validatePayloadDir(root, true)
	if err != nil {
		t.Fatalf("validatePayloadDir failed: %v", err)
	}
	if result.Scanned != 3 || result.Valid != 1 || result.Invalid != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestValidateShippedConfig(t *testing.T) {
	t.Parallel()

	code := runValidate([]string{
		"--sources", "../../config/sources.yaml",
		"--sections", "../../config/sections.yaml",
	})
	if code != 0 {
		t.Fatalf("shipped config should validate, exit code %d", code)
	}
}

func TestValidateNeedsInput(t *testing.T) {
	t.Parallel()

	if code := runValidate(nil); code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
}
