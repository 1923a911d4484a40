package models

import (
	"strings"
	"testing"
)

func TestResponseValidate(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want error
	}{
		{"text", Response{From: "77011234567", Body: "hello"}, nil},
		{"media only", Response{From: "77011234567", Media: []Attachment{{URL: "https://x/y.jpg"}}}, nil},
		{"no sender", Response{Body: "hello"}, ErrEmptySender},
		{"blank", Response{From: "77011234567", Body: "   "}, ErrEmptyEvent},
		{"too long", Response{From: "77011234567", Body: strings.Repeat("a", MaxMessageBodyLength+1)}, ErrBodyTooLong},
		{"too many media", Response{From: "77011234567", Media: make([]Attachment, MaxAttachmentsPerEvent+1)}, ErrTooManyAttachments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttachmentIsImage(t *testing.T) {
	if !(Attachment{URL: "data:image/jpeg;base64,AAAA"}).IsImage() {
		t.Error("data image URL should be an image")
	}
	if !(Attachment{URL: "https://api.twilio.com/media/1", MIMEType: "image/png"}).IsImage() {
		t.Error("image/png should be an image")
	}
	if (Attachment{URL: "https://api.twilio.com/media/2", MIMEType: "application/pdf"}).IsImage() {
		t.Error("pdf should not be an image")
	}
}

func TestAPIEnvelope(t *testing.T) {
	if r := Error("boom"); r.Status != "error" || r.Message != "boom" {
		t.Errorf("unexpected error envelope: %+v", r)
	}
	if r := Success(42); r.Status != "ok" || r.Result != 42 {
		t.Errorf("unexpected success envelope: %+v", r)
	}
}
