package entity

import (
	"time"

	"github.com/joseph-ayodele/packet-underwriter/constants"
)

// Case is one underwriting record as read from the record store.
type Case struct {
	ID           string           `json:"id"`
	Counterparty string           `json:"counterparty"`
	References   []ReferenceField `json:"references"`
	Attachments  []Attachment     `json:"attachments"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

// ReferenceField is a system-of-record value; read-only for the case's lifetime.
// A nil ExpectedValue means the record store holds no value at all.
type ReferenceField struct {
	Name          string              `json:"name"`
	Kind          constants.FieldKind `json:"kind"`
	ExpectedValue *string             `json:"expected_value,omitempty"`
}

// Present reports whether the reference carries a value (possibly "0").
func (r ReferenceField) Present() bool {
	return r.ExpectedValue != nil
}

// Expected returns the reference value or "" when absent.
func (r ReferenceField) Expected() string {
	if r.ExpectedValue == nil {
		return ""
	}
	return *r.ExpectedValue
}

// Attachment is a categorized descriptor; bytes are fetched lazily by ContentKey.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	ContentKey  string `json:"content_key"`
	Category    string `json:"category"`
	Role        string `json:"role,omitempty"` // main | auxiliary
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// DocumentRole separates primary from supporting bank statements.
type DocumentRole string

const (
	RoleMain      DocumentRole = "main"
	RoleAuxiliary DocumentRole = "auxiliary"
)

// SourceDocument is built from an attachment at case-fetch time and never mutated.
type SourceDocument struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Category    constants.DocumentCategory `json:"category"`
	MimeKind    constants.MimeKind         `json:"mime_kind"`
	ContentKey  string                     `json:"content_key"`
	ContentType string                     `json:"content_type"`
	TotalPages  int                        `json:"total_pages,omitempty"` // 0 = unknown
	Role        DocumentRole               `json:"role"`
}

// SkippedAttachment records an attachment that could not become a SourceDocument.
type SkippedAttachment struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
