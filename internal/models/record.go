package models

import "time"

// RecordTimeLayout is the timestamp format written to the submission sheet.
const RecordTimeLayout = "02.01.2006 15:04"

// RecordPlaceholder fills columns a record kind does not collect.
const RecordPlaceholder = "-"

// RecordColumnCount is the fixed width of a submission row.
const RecordColumnCount = 11

// Record kinds written in the first column.
const (
	RecordKindOrder       = "ЗАКАЗ"
	RecordKindDocAnalysis = "AI_АНАЛИЗ"
)

// Record is a finished submission. Columns renders it in the documented column order:
// kind, time, name, phone, cargo, invoice value, origin, destination, weight, volume, details.
type Record struct {
	Kind        string
	CreatedAt   time.Time
	Name        string
	Phone       string
	Cargo       string
	CargoValue  string
	Origin      string
	Destination string
	Weight      string
	Volume      string
	Details     string
}

// Columns returns the record as a flat ordered row. Empty values become the placeholder.
func (r Record) Columns() []string {
	cols := []string{
		r.Kind,
		r.CreatedAt.Format(RecordTimeLayout),
		r.Name,
		r.Phone,
		r.Cargo,
		r.CargoValue,
		r.Origin,
		r.Destination,
		r.Weight,
		r.Volume,
		r.Details,
	}
	for i, c := range cols {
		if c == "" {
			cols[i] = RecordPlaceholder
		}
	}
	return cols
}

// OrderRecord maps a completed order intake session to a Record.
func OrderRecord(s *Session, at time.Time) Record {
	get := func(f FieldName) string {
		v, _ := s.Field(f)
		return v
	}
	return Record{
		Kind:        RecordKindOrder,
		CreatedAt:   at,
		Name:        get(FieldFullName),
		Phone:       get(FieldPhone),
		Cargo:       get(FieldCargo),
		CargoValue:  get(FieldCargoValue),
		Origin:      get(FieldOrigin),
		Destination: get(FieldDestination),
		Weight:      get(FieldWeight),
		Volume:      get(FieldVolume),
	}
}

// DocAnalysisRecord is the row written after a document batch was analysed. Only the
// participant name and the report are known; every other column is a placeholder.
func DocAnalysisRecord(name, report string, at time.Time) Record {
	return Record{
		Kind:      RecordKindDocAnalysis,
		CreatedAt: at,
		Name:      name,
		Details:   report,
	}
}
