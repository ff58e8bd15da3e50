package r2s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDeriveSigningKeyMatchesAWSExample(t *testing.T) {
	k := deriveSigningKey("wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "20120215", "us-east-1", "iam")
	if got := hex.EncodeToString(k); got != "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d" {
		t.Fatalf("signing key = %s", got)
	}
}

func TestPutFileSignsPathStyleRequest(t *testing.T) {
	var (
		gotMethod, gotPath, gotAuth, gotHash, gotDate string
		gotBody                                       []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotDate = r.Header.Get("x-amz-date")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "bkt", "AK", "SK")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	local := filepath.Join(t.TempDir(), "7.snap.zst")
	body := []byte("snapshot bytes")
	if err := os.WriteFile(local, body, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.PutFile(context.Background(), "/w1/snapshots/7 a.snap.zst", local); err != nil {
		t.Fatalf("put: %v", err)
	}

	sum := sha256.Sum256(body)
	if gotMethod != http.MethodPut || gotPath != "/bkt/w1/snapshots/7%20a.snap.zst" {
		t.Fatalf("request: %s %s", gotMethod, gotPath)
	}
	if gotHash != hex.EncodeToString(sum[:]) || gotDate != "20260102T030405Z" || string(gotBody) != string(body) {
		t.Fatalf("headers: hash=%s date=%s body=%q", gotHash, gotDate, gotBody)
	}
	want := "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature="
	if !strings.HasPrefix(gotAuth, want) || len(gotAuth) != len(want)+64 {
		t.Fatalf("authorization: %s", gotAuth)
	}
}

func TestPutFileReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "bkt", "AK", "SK")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	local := filepath.Join(t.TempDir(), "f")
	_ = os.WriteFile(local, []byte("x"), 0o644)
	err = c.PutFile(context.Background(), "f", local)
	if err == nil || !strings.Contains(err.Error(), "status=403") || !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if err := c.PutFile(context.Background(), "../", local); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("r2.example", "", "AK", "SK"); err == nil {
		t.Fatalf("expected error without bucket")
	}
	c, err := New("r2.example", "b", "AK", "SK")
	if err != nil || c.endpoint != "https://r2.example" {
		t.Fatalf("endpoint: %v %+v", err, c)
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	fails int
	calls int
	keys  []string
}

func (f *fakeUploader) PutFile(ctx context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return errors.New("503")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirrorUploadsRelativeKeys(t *testing.T) {
	root := t.TempDir()
	snap := filepath.Join(root, "worlds", "w1", "snapshots", "3.snap.zst")
	_ = os.MkdirAll(filepath.Dir(snap), 0o755)
	_ = os.WriteFile(snap, []byte("x"), 0o644)
	outside := filepath.Join(t.TempDir(), "other.snap.zst")
	_ = os.WriteFile(outside, []byte("x"), 0o644)

	up := &fakeUploader{fails: 2}
	m := NewMirror(up, root, "/backups/", MirrorOptions{Workers: 1, Backoff: time.Millisecond}, nil)
	m.Enqueue(snap)
	m.Enqueue(outside)
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "backups/worlds/w1/snapshots/3.snap.zst" {
		t.Fatalf("keys: %v", up.keys)
	}
	if up.calls != 3 {
		t.Fatalf("calls = %d, want 3 (two retries)", up.calls)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMirrorGivesUpAfterAttempts(t *testing.T) {
	root := t.TempDir()
	f := filepath.Join(root, "a")
	_ = os.WriteFile(f, []byte("x"), 0o644)

	up := &fakeUploader{fails: 10}
	m := NewMirror(up, root, "", MirrorOptions{Attempts: 2, Backoff: time.Millisecond}, nil)
	m.Enqueue(f)
	m.Close()
	if up.calls != 2 || m.Stats().UploadFailTotal != 1 {
		t.Fatalf("calls=%d stats=%+v", up.calls, m.Stats())
	}
}

func TestNilMirrorIsInert(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("nil mirror stats")
	}
}
