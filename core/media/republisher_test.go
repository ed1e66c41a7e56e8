package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeUploader struct {
	fail    bool
	bucket  string
	key     string
	data    []byte
	ctype   string
	uploads int
}

func (f *fakeUploader) Upload(_ context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	f.uploads++
	if f.fail {
		return "", errors.New("storage offline")
	}
	f.bucket, f.key, f.data, f.ctype = bucket, key, data, contentType
	return "https://media.octamuse.example/" + bucket + "/" + key, nil
}

func TestRepublishAudio(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer ts.Close()

	up := &fakeUploader{}
	got := NewRepublisher(up).RepublishAudio(context.Background(), 42, ts.URL+"/a.mp3")

	if !strings.HasPrefix(got, "https://media.octamuse.example/music-files/") {
		t.Fatalf("url = %q, want owned storage url", got)
	}
	if !strings.HasPrefix(up.key, "42_") || !strings.HasSuffix(up.key, ".mp3") {
		t.Errorf("key = %q, want 42_<uuid>.mp3", up.key)
	}
	if string(up.data) != "mp3-bytes" {
		t.Errorf("uploaded bytes = %q", up.data)
	}
	if up.ctype != "audio/mpeg" {
		t.Errorf("content type = %q", up.ctype)
	}
}

func TestRepublishFallsBackOnDownloadFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	up := &fakeUploader{}
	remote := ts.URL + "/gone.mp3"
	got := NewRepublisher(up).RepublishAudio(context.Background(), 42, remote)

	if got != remote {
		t.Fatalf("url = %q, want original %q", got, remote)
	}
	if up.uploads != 0 {
		t.Error("upload attempted after failed download")
	}
}

func TestRepublishFallsBackOnUploadFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpg-bytes"))
	}))
	defer ts.Close()

	remote := ts.URL + "/c.jpg"
	got := NewRepublisher(&fakeUploader{fail: true}).RepublishCover(context.Background(), 42, remote)

	if got != remote {
		t.Fatalf("url = %q, want original %q", got, remote)
	}
}

func TestRepublishCoverEmptyURL(t *testing.T) {
	up := &fakeUploader{}
	got := NewRepublisher(up).RepublishCover(context.Background(), 42, "")
	if got != "" {
		t.Fatalf("url = %q, want empty", got)
	}
	if up.uploads != 0 {
		t.Error("upload attempted for empty url")
	}
}
