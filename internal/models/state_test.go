package models

import "testing"

func TestSessionSetIsAppendOnly(t *testing.T) {
	s := NewSession("c1", FlowOrderIntake, StateOrderName)
	if !s.Set(FieldFullName, "Ivan") {
		t.Fatal("first Set should succeed")
	}
	if s.Set(FieldFullName, "Petr") {
		t.Fatal("second Set of the same field should be refused")
	}
	if v, _ := s.Field(FieldFullName); v != "Ivan" {
		t.Errorf("expected original value to survive, got %q", v)
	}
	if len(s.Order) != 1 || s.Order[0] != FieldFullName {
		t.Errorf("unexpected order: %v", s.Order)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := NewSession("c1", FlowDocAnalysis, StateDocCollecting)
	s.Set(FieldCargo, "tea")
	s.Attachments = append(s.Attachments, Attachment{URL: "https://x"})

	c := s.Clone()
	c.Set(FieldOrigin, "Almaty")
	c.Attachments[0].URL = "changed"

	if s.Has(FieldOrigin) {
		t.Error("clone mutation leaked into original fields")
	}
	if s.Attachments[0].URL != "https://x" {
		t.Error("clone mutation leaked into original attachments")
	}
}

func TestNilSessionAccessors(t *testing.T) {
	var s *Session
	if s.Has(FieldPhone) || s.Completed() || s.Clone() != nil {
		t.Error("nil session accessors should be zero-valued")
	}
}
