package models

import (
	"testing"
	"time"
)

func TestOrderRecordColumns(t *testing.T) {
	s := NewSession("c1", FlowOrderIntake, StateOrderName)
	s.Set(FieldFullName, "Ivan Petrov")
	s.Set(FieldPhoneCountry, "+7")
	s.Set(FieldPhone, "+77011234567")
	s.Set(FieldCargo, "Electronics")
	s.Set(FieldCargoValue, "12000")
	s.Set(FieldOrigin, "Guangzhou")
	s.Set(FieldDestination, "Almaty")
	s.Set(FieldWeight, "500")
	s.Set(FieldVolume, "3")

	at := time.Date(2026, 3, 5, 14, 7, 0, 0, time.UTC)
	cols := OrderRecord(s, at).Columns()

	want := []string{"ЗАКАЗ", "05.03.2026 14:07", "Ivan Petrov", "+77011234567", "Electronics", "12000", "Guangzhou", "Almaty", "500", "3", "-"}
	if len(cols) != RecordColumnCount {
		t.Fatalf("expected %d columns, got %d", RecordColumnCount, len(cols))
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d: expected %q, got %q", i, want[i], cols[i])
		}
	}
}

func TestRecordPlaceholders(t *testing.T) {
	cols := Record{Kind: RecordKindDocAnalysis, Name: "Anna", Details: "report"}.Columns()
	for i := 3; i < 10; i++ {
		if cols[i] != RecordPlaceholder {
			t.Errorf("column %d should be placeholder, got %q", i, cols[i])
		}
	}
	if cols[10] != "report" {
		t.Errorf("details column: got %q", cols[10])
	}
}
