package model

import (
	"CloudVault/internal/common"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSetName_OriginalName(t *testing.T) {
	v := NewFileVersion("logo.png")
	v.Name = "previous-name"
	if err := v.SetName(true); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if v.Name != "logo.png" {
		t.Fatalf("expect name logo.png, got %s", v.Name)
	}
	if !v.IsOriginalName {
		t.Fatal("expect IsOriginalName to be recorded")
	}
}

func TestSetName_KeepsExistingName(t *testing.T) {
	v := NewFileVersion("logo.png")
	v.Name = "assets/logo-v1.png"
	if err := v.SetName(false); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if v.Name != "assets/logo-v1.png" {
		t.Fatalf("name should be unchanged, got %s", v.Name)
	}
}

func TestSetName_GeneratesUniqueName(t *testing.T) {
	a := NewFileVersion("report.pdf")
	b := NewFileVersion("report.pdf")
	if err := a.SetName(false); err != nil {
		t.Fatal(err)
	}
	if err := b.SetName(false); err != nil {
		t.Fatal(err)
	}
	if a.Name == b.Name {
		t.Fatalf("generated names collide: %s", a.Name)
	}
	if !strings.HasSuffix(a.Name, "_report.pdf") {
		t.Fatalf("unexpected generated name %s", a.Name)
	}
	if _, err := uuid.Parse(a.Name); err == nil {
		t.Fatalf("generated name must not parse as uuid: %s", a.Name)
	}
}

func TestSetName_RejectsUUIDName(t *testing.T) {
	v := NewFileVersion(uuid.NewString())
	err := v.SetName(true)
	if !errors.Is(err, common.ErrInvalidName) {
		t.Fatalf("expect ErrInvalidName, got %v", err)
	}
}

func TestSetName_RejectsEmptyOriginal(t *testing.T) {
	v := NewFileVersion("   ")
	if err := v.SetName(true); !errors.Is(err, common.ErrInvalidName) {
		t.Fatalf("expect ErrInvalidName, got %v", err)
	}
}
