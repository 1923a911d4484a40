// Package models defines state management structures for conversation flows.
package models

import "time"

// Session is the mutable per-conversation record of the active flow, the current step and
// the values collected so far. Order keeps field insertion order.
type Session struct {
	ConversationID string               `json:"conversation_id"`
	Flow           FlowType             `json:"flow"`
	Step           StateType            `json:"step"`
	Fields         map[FieldName]string `json:"fields,omitempty"`
	Order          []FieldName          `json:"order,omitempty"`
	Attachments    []Attachment         `json:"attachments,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewSession returns an empty session positioned at the first step of flow.
func NewSession(conversationID string, flow FlowType, first StateType) *Session {
	now := time.Now()
	return &Session{
		ConversationID: conversationID,
		Flow:           flow,
		Step:           first,
		Fields:         make(map[FieldName]string),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Field returns the collected value for name.
func (s *Session) Field(name FieldName) (string, bool) {
	if s == nil || s.Fields == nil {
		return "", false
	}
	v, ok := s.Fields[name]
	return v, ok
}

// Has reports whether name has been collected.
func (s *Session) Has(name FieldName) bool {
	_, ok := s.Field(name)
	return ok
}

// Set stores a value and records its position. It reports false if the field was already set.
func (s *Session) Set(name FieldName, value string) bool {
	if s.Fields == nil {
		s.Fields = make(map[FieldName]string)
	}
	if _, exists := s.Fields[name]; exists {
		return false
	}
	s.Fields[name] = value
	s.Order = append(s.Order, name)
	s.UpdatedAt = time.Now()
	return true
}

// Completed reports whether the session reached the terminal step.
func (s *Session) Completed() bool {
	return s != nil && s.Step == StateDone
}

// Clone returns a deep copy so stores never hand out shared mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = make(map[FieldName]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	c.Order = append([]FieldName(nil), s.Order...)
	c.Attachments = append([]Attachment(nil), s.Attachments...)
	return &c
}
