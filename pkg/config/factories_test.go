package config

import (
	"context"
	"testing"

	"github.com/hollowfs/vfscore/pkg/capability"
)

func TestCreateProvider_Memory(t *testing.T) {
	p, err := CreateProvider(context.Background(), ProviderConfig{Scheme: "file", Type: "memory"})
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateProvider() returned nil provider")
	}
}

func TestCreateProvider_Localfs(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := CreateProvider(context.Background(), ProviderConfig{
		Scheme:  "file",
		Type:    "localfs",
		Localfs: map[string]any{"path": tmpDir},
	})
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}
	if p.Capabilities()&capability.FileOpenReadWriteClose == 0 {
		t.Error("localfs provider missing FileOpenReadWriteClose capability")
	}
}

func TestCreateProvider_LocalfsMissingPath(t *testing.T) {
	_, err := CreateProvider(context.Background(), ProviderConfig{
		Scheme:  "file",
		Type:    "localfs",
		Localfs: map[string]any{},
	})
	if err == nil {
		t.Fatal("expected error when localfs path is missing")
	}
}

func TestCreateProvider_Badger(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := CreateProvider(context.Background(), ProviderConfig{
		Scheme: "db",
		Type:   "badger",
		Badger: map[string]any{"db_path": tmpDir},
	})
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}
	if p.Capabilities()&capability.FileOpenReadWriteClose == 0 {
		t.Error("badger provider missing FileOpenReadWriteClose capability")
	}
}

func TestCreateProvider_S3MissingBucket(t *testing.T) {
	_, err := CreateProvider(context.Background(), ProviderConfig{
		Scheme: "s3",
		Type:   "s3",
		S3:     map[string]any{"region": "us-east-1"},
	})
	if err == nil {
		t.Fatal("expected error when S3 bucket is missing")
	}
}

func TestCreateProvider_RemoteMissingAddress(t *testing.T) {
	_, err := CreateProvider(context.Background(), ProviderConfig{
		Scheme: "remote",
		Type:   "remote",
		Remote: map[string]any{},
	})
	if err == nil {
		t.Fatal("expected error when remote address is missing")
	}
}

func TestCreateProvider_UnknownType(t *testing.T) {
	_, err := CreateProvider(context.Background(), ProviderConfig{Scheme: "x", Type: "postgres"})
	if err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}
