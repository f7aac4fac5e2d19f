package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriter_AppendAndVerify(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, []byte("test-secret"))

	if err := w.Append("key.issued", map[string]any{"key": "dhk_abc123"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append("key.revoked", map[string]any{"key": "dhk_abc123"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append("webhook.received", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := Verify(bytes.NewReader(buf.Bytes()), []byte("test-secret")); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerify_WrongSecretFails(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, []byte("real-secret"))
	if err := w.Append("key.issued", nil); err != nil {
		t.Fatal(err)
	}

	if err := Verify(bytes.NewReader(buf.Bytes()), []byte("wrong-secret")); err == nil {
		t.Fatal("expected verify to fail with wrong secret")
	}
}

func TestVerify_TamperedRecordFails(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, []byte("test-secret"))
	if err := w.Append("key.issued", map[string]any{"key": "dhk_a"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Append("key.issued", map[string]any{"key": "dhk_b"}); err != nil {
		t.Fatal(err)
	}

	tampered := strings.Replace(buf.String(), "dhk_a", "dhk_x", 1)
	if err := Verify(strings.NewReader(tampered), []byte("test-secret")); err == nil {
		t.Fatal("expected verify to fail on tampered record")
	}
}

func TestVerify_DroppedRecordFails(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, []byte("test-secret"))
	for i := 0; i < 3; i++ {
		if err := w.Append("event", nil); err != nil {
			t.Fatal(err)
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// Drop the middle record: the chain should no longer connect.
	truncated := lines[0] + "\n" + lines[2] + "\n"
	if err := Verify(strings.NewReader(truncated), []byte("test-secret")); err == nil {
		t.Fatal("expected verify to fail on chain with a dropped record")
	}
}

func TestOpen_ResumesChainAcrossRestarts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	secret := []byte("restart-secret")

	w1, err := Open(path, secret)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w1.Append("key.issued", map[string]any{"key": "dhk_a"}); err != nil {
		t.Fatal(err)
	}
	if err := w1.Close(); err != nil {
		t.Fatal(err)
	}

	w2, err := Open(path, secret)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w2.Append("key.revoked", map[string]any{"key": "dhk_a"}); err != nil {
		t.Fatal(err)
	}
	if err := w2.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(bytes.NewReader(data), secret); err != nil {
		t.Fatalf("verify full log: %v", err)
	}
}

func TestWriter_RotateIfLarger(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	secret := []byte("rotate-secret")

	w, err := Open(path, secret)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Append("key.issued", map[string]any{"key": "dhk_a"}); err != nil {
		t.Fatal(err)
	}

	rotated, err := w.RotateIfLarger(1 << 30)
	if err != nil {
		t.Fatalf("rotate (should not trigger): %v", err)
	}
	if rotated {
		t.Fatal("should not rotate while under size limit")
	}

	rotated, err = w.RotateIfLarger(1)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !rotated {
		t.Fatal("expected rotation once over size limit")
	}

	if err := w.Append("key.revoked", map[string]any{"key": "dhk_a"}); err != nil {
		t.Fatal(err)
	}

	// The new active file should contain just the post-rotation record,
	// starting its own chain from genesis.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(bytes.NewReader(data), secret); err != nil {
		t.Fatalf("verify post-rotation log: %v", err)
	}

	entries, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one rotated file, got %v", entries)
	}
}

func TestOpen_RejectsEmptySecret(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	if _, err := Open(path, nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
