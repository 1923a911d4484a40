// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType identifies one conversational flow.
type FlowType string

// StateType identifies a step within a flow.
type StateType string

// FieldName is the key under which a step stores its collected value.
type FieldName string

// Flow type constants.
const (
	FlowNone        FlowType = ""
	FlowOrderIntake FlowType = "order_intake"
	FlowCustomsCalc FlowType = "customs_calc"
	FlowDocAnalysis FlowType = "doc_analysis"
)

// StateDone is the terminal step marker shared by every flow.
const StateDone StateType = "done"

// State constants for the order intake flow.
const (
	StateOrderName         StateType = "order_name"
	StateOrderPhoneCountry StateType = "order_phone_country"
	StateOrderPhone        StateType = "order_phone"
	StateOrderCargo        StateType = "order_cargo"
	StateOrderValue        StateType = "order_value"
	StateOrderOrigin       StateType = "order_origin"
	StateOrderDestination  StateType = "order_destination"
	StateOrderWeight       StateType = "order_weight"
	StateOrderVolume       StateType = "order_volume"
)

// State constants for the customs calculator flow.
const (
	StateCustomsCargoName  StateType = "customs_cargo_name"
	StateCustomsDutyChoice StateType = "customs_duty_choice"
	StateCustomsManualDuty StateType = "customs_manual_duty"
	StateCustomsPrice      StateType = "customs_price"
	StateCustomsRegion     StateType = "customs_region"
)

// State constants for document analysis.
const (
	StateDocCollecting StateType = "doc_collecting"
)

// Field name constants.
const (
	FieldFullName     FieldName = "full_name"
	FieldPhoneCountry FieldName = "phone_country"
	FieldPhone        FieldName = "phone"
	FieldCargo        FieldName = "cargo"
	FieldCargoValue   FieldName = "cargo_value"
	FieldOrigin       FieldName = "origin"
	FieldDestination  FieldName = "destination"
	FieldWeight       FieldName = "weight"
	FieldVolume       FieldName = "volume"
	FieldCargoName    FieldName = "cargo_name"
	FieldDutyPercent  FieldName = "duty_percent"
	FieldPrice        FieldName = "price"
	FieldVATPercent   FieldName = "vat_percent"
)

// IsValid reports whether the flow type is one of the known flows.
func (f FlowType) IsValid() bool {
	switch f {
	case FlowOrderIntake, FlowCustomsCalc, FlowDocAnalysis:
		return true
	default:
		return false
	}
}
