package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"schemascope/internal/domain"
)

const sampleSnapshot = `
api_version: "v64.0"
entities:
  - name: Account
    label: Account
    label_plural: Accounts
    key_prefix: "001"
    fields:
      - name: Name
        display_type: string
      - name: ParentId
        display_type: reference
        reference_targets: [Account]
        strength: weak
  - name: Contact
    fields:
      - name: AccountId
        reference_targets: [Account]
        strength: strong
    relationships:
      - child_entity: Case
        child_field: ContactId
        strength: weak
`

func TestParseSnapshot(t *testing.T) {
	p, err := ParseSnapshot([]byte(sampleSnapshot))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if p.APIVersion() != "v64.0" {
		t.Errorf("expected v64.0, got %s", p.APIVersion())
	}

	desc, err := p.Describe(context.Background(), "Account")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if desc.Label != "Account" || desc.KeyPrefix != "001" {
		t.Errorf("unexpected Account description %+v", desc)
	}

	parent, ok := desc.Field("ParentId")
	if !ok {
		t.Fatal("ParentId field missing")
	}
	if !parent.IsReference {
		t.Error("field with reference targets must be marked a reference")
	}
	if parent.Strength != domain.StrengthWeak {
		t.Errorf("expected weak, got %s", parent.Strength)
	}

	t.Run("label defaults to name", func(t *testing.T) {
		contact, err := p.Describe(context.Background(), "Contact")
		if err != nil {
			t.Fatalf("describe failed: %v", err)
		}
		if contact.Label != "Contact" {
			t.Errorf("expected defaulted label, got %q", contact.Label)
		}
	})

	t.Run("relationships parsed", func(t *testing.T) {
		contact, _ := p.Describe(context.Background(), "Contact")
		rel, ok := contact.Relationship("Case", "ContactId")
		if !ok {
			t.Fatal("Case.ContactId relationship missing")
		}
		if rel.Strength != domain.StrengthWeak {
			t.Errorf("expected weak, got %s", rel.Strength)
		}
	})
}

func TestParseSnapshotValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing api version",
			yaml:    "entities: []",
			wantErr: "api_version",
		},
		{
			name: "missing entity name",
			yaml: `
api_version: v1
entities:
  - label: Nameless
`,
			wantErr: "missing name",
		},
		{
			name: "duplicate entity",
			yaml: `
api_version: v1
entities:
  - name: Account
  - name: Account
`,
			wantErr: "duplicate entity",
		},
		{
			name: "duplicate field",
			yaml: `
api_version: v1
entities:
  - name: Account
    fields:
      - name: Name
      - name: Name
`,
			wantErr: "duplicate field",
		},
		{
			name: "invalid strength",
			yaml: `
api_version: v1
entities:
  - name: Contact
    fields:
      - name: AccountId
        reference_targets: [Account]
        strength: sturdy
`,
			wantErr: "invalid strength",
		},
		{
			name:    "malformed yaml",
			yaml:    "api_version: [unclosed",
			wantErr: "parse snapshot",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(sampleSnapshot), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if p.APIVersion() != "v64.0" {
		t.Errorf("expected v64.0, got %s", p.APIVersion())
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestSnapshotListEntities(t *testing.T) {
	p, err := ParseSnapshot([]byte(sampleSnapshot))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	list, err := p.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(list))
	}
	// Sorted by name regardless of snapshot order.
	if list[0].Name != "Account" || list[1].Name != "Contact" {
		t.Errorf("unexpected order: %s, %s", list[0].Name, list[1].Name)
	}
}

func TestSnapshotDescribeBatch(t *testing.T) {
	p, err := ParseSnapshot([]byte(sampleSnapshot))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	descs, errs, err := p.DescribeBatch(context.Background(), []string{"Account", "Bogus", "Contact"})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(descs) != 2 {
		t.Errorf("expected 2 descriptions, got %d", len(descs))
	}
	if !errors.Is(errs["Bogus"], ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound for Bogus, got %v", errs["Bogus"])
	}
}
