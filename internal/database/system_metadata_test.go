package database

import "testing"

func TestMetadataGetSetRoundTrip(t *testing.T) {
	store, err := NewMetadataStore(newTestDB(t))
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	if v, err := store.Get("missing"); err != nil || v != "" {
		t.Fatalf("expected empty string for unset key, got %q (err=%v)", v, err)
	}

	if err := store.Set("foo", "bar"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := store.Get("foo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected bar, got %q", v)
	}
}

func TestEnsureSchemaVersionIsIdempotent(t *testing.T) {
	store, err := NewMetadataStore(newTestDB(t))
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	if err := store.EnsureSchemaVersion(); err != nil {
		t.Fatalf("EnsureSchemaVersion: %v", err)
	}
	v1, _ := store.SchemaVersion()

	if err := store.Set("schema_version", "99"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.EnsureSchemaVersion(); err != nil {
		t.Fatalf("EnsureSchemaVersion (second call): %v", err)
	}
	v2, _ := store.SchemaVersion()

	if v1 == v2 {
		t.Fatalf("expected EnsureSchemaVersion to leave an existing value alone")
	}
	if v2 != "99" {
		t.Fatalf("expected existing value 99 preserved, got %q", v2)
	}
}

func TestNeedsVectorRebuildDetectsDimensionChange(t *testing.T) {
	store, err := NewMetadataStore(newTestDB(t))
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	needs, err := store.NeedsVectorRebuild(384)
	if err != nil {
		t.Fatalf("NeedsVectorRebuild (unset): %v", err)
	}
	if needs {
		t.Fatalf("expected no rebuild needed when no dimension has been recorded yet")
	}

	if err := store.RecordEmbeddingDimension(384); err != nil {
		t.Fatalf("RecordEmbeddingDimension: %v", err)
	}

	needs, err = store.NeedsVectorRebuild(384)
	if err != nil {
		t.Fatalf("NeedsVectorRebuild (same): %v", err)
	}
	if needs {
		t.Fatalf("expected no rebuild needed when dimension matches")
	}

	needs, err = store.NeedsVectorRebuild(768)
	if err != nil {
		t.Fatalf("NeedsVectorRebuild (changed): %v", err)
	}
	if !needs {
		t.Fatalf("expected rebuild needed after dimension change")
	}
}
