package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stackroom/rankd/internal/ranking"
)

type capturedObject struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

type fakeObjectAPI struct {
	objects []capturedObject
	err     error
}

func (f *fakeObjectAPI) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects = append(f.objects, capturedObject{
		bucket:      *params.Bucket,
		key:         *params.Key,
		contentType: *params.ContentType,
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func newTestExporter(t *testing.T, api *fakeObjectAPI) *Exporter {
	t.Helper()
	e, err := NewExporter(ExporterConfig{
		Bucket:          "feed-snapshots",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "http://localhost:9000",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	e.client = api
	e.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func TestExportWritesTimestampedAndLatestObjects(t *testing.T) {
	api := &fakeObjectAPI{}
	e := newTestExporter(t, api)

	entries := []ranking.RankedEntry{
		{Type: ranking.ItemTypeCard, ID: "c1", NormScore: 2.5},
		{Type: ranking.ItemTypeCollection, ID: "col1", NormScore: 1.0},
	}
	if err := e.Export(context.Background(), entries); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if len(api.objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(api.objects))
	}
	if got, want := api.objects[0].key, "feed/2026-03-01T12-00-00Z.json"; got != want {
		t.Errorf("timestamped key = %q, want %q", got, want)
	}
	if got, want := api.objects[1].key, LatestKey; got != want {
		t.Errorf("latest key = %q, want %q", got, want)
	}
	for _, obj := range api.objects {
		if obj.bucket != "feed-snapshots" {
			t.Errorf("bucket = %q", obj.bucket)
		}
		if obj.contentType != "application/json" {
			t.Errorf("content type = %q", obj.contentType)
		}
	}

	var doc Document
	if err := json.Unmarshal(api.objects[0].body, &doc); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(doc.Entries) != 2 || doc.Entries[0].ID != "c1" {
		t.Errorf("unexpected entries: %+v", doc.Entries)
	}
	if !doc.GeneratedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("generated_at = %v", doc.GeneratedAt)
	}
}

func TestExportPropagatesUploadError(t *testing.T) {
	api := &fakeObjectAPI{err: fs.ErrPermission}
	e := newTestExporter(t, api)

	err := e.Export(context.Background(), nil)
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
}

func TestNewExporterValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  ExporterConfig
	}{
		{"missing bucket", ExporterConfig{AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "e"}},
		{"missing access key", ExporterConfig{Bucket: "b", SecretAccessKey: "s", Endpoint: "e"}},
		{"missing secret", ExporterConfig{Bucket: "b", AccessKeyID: "k", Endpoint: "e"}},
		{"missing endpoint", ExporterConfig{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewExporter(tc.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
