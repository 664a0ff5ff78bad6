package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"schemascope/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleDescription() *domain.EntityDescription {
	return &domain.EntityDescription{
		Name:        "Account",
		Label:       "Account",
		LabelPlural: "Accounts",
		KeyPrefix:   "001",
		Fields: []domain.FieldDescriptor{
			{Name: "Name", DisplayType: "string", Length: 255},
			{
				Name:             "ParentId",
				DisplayType:      "reference",
				IsReference:      true,
				ReferenceTargets: []string{"Account"},
				RelationshipName: "ChildAccounts",
				Strength:         domain.StrengthWeak,
			},
		},
		Relationships: []domain.RelationshipDescriptor{
			{ChildEntity: "Contact", ChildField: "AccountId", Strength: domain.StrengthWeak},
		},
	}
}

func TestSaveAndLoadDescriptions(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	want := sampleDescription()
	if err := repo.SaveDescription(ctx, "v64", want); err != nil {
		t.Fatalf("SaveDescription() error: %v", err)
	}

	descs, err := repo.LoadDescriptions(ctx, "v64")
	if err != nil {
		t.Fatalf("LoadDescriptions() error: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if !reflect.DeepEqual(descs[0], want) {
		t.Errorf("round trip changed the description:\ngot  %+v\nwant %+v", descs[0], want)
	}
}

func TestSaveDescriptionUpsert(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := sampleDescription()
	if err := repo.SaveDescription(ctx, "v64", first); err != nil {
		t.Fatalf("SaveDescription() error: %v", err)
	}

	updated := sampleDescription()
	updated.Label = "Business Account"
	if err := repo.SaveDescription(ctx, "v64", updated); err != nil {
		t.Fatalf("SaveDescription() upsert error: %v", err)
	}

	descs, err := repo.LoadDescriptions(ctx, "v64")
	if err != nil {
		t.Fatalf("LoadDescriptions() error: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("upsert created a duplicate row: %d rows", len(descs))
	}
	if descs[0].Label != "Business Account" {
		t.Errorf("Label = %s, want Business Account", descs[0].Label)
	}
}

func TestVersionIsolation(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	v64 := sampleDescription()
	v65 := sampleDescription()
	v65.Fields = append(v65.Fields, domain.FieldDescriptor{Name: "NewField", DisplayType: "string"})

	if err := repo.SaveDescription(ctx, "v64", v64); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveDescription(ctx, "v65", v65); err != nil {
		t.Fatal(err)
	}

	descs, err := repo.LoadDescriptions(ctx, "v64")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || len(descs[0].Fields) != 2 {
		t.Error("v64 load returned v65 data")
	}

	descs, err = repo.LoadDescriptions(ctx, "v65")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || len(descs[0].Fields) != 3 {
		t.Error("v65 load returned v64 data")
	}

	versions, err := repo.Versions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(versions, []string{"v64", "v65"}) {
		t.Errorf("Versions() = %v, want [v64 v65]", versions)
	}
}

func TestDeleteVersion(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.SaveDescription(ctx, "v64", sampleDescription()); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveDescription(ctx, "v65", sampleDescription()); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteVersion(ctx, "v64"); err != nil {
		t.Fatalf("DeleteVersion() error: %v", err)
	}

	descs, err := repo.LoadDescriptions(ctx, "v64")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 0 {
		t.Errorf("v64 still has %d descriptions after delete", len(descs))
	}

	descs, err = repo.LoadDescriptions(ctx, "v65")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 {
		t.Error("delete of v64 touched v65")
	}
}

func TestLoadDescriptionsSorted(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, name := range []string{"Contact", "Account", "Lead"} {
		desc := &domain.EntityDescription{Name: name, Label: name}
		if err := repo.SaveDescription(ctx, "v64", desc); err != nil {
			t.Fatal(err)
		}
	}

	descs, err := repo.LoadDescriptions(ctx, "v64")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range descs {
		names = append(names, d.Name)
	}
	if !reflect.DeepEqual(names, []string{"Account", "Contact", "Lead"}) {
		t.Errorf("expected name order, got %v", names)
	}
}
