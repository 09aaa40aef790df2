package workflow

import (
	"time"

	"rcstation/internal/validation"
)

type NoticeKind string

const (
	NoticeInfo             NoticeKind = "info"
	NoticeStep             NoticeKind = "step"
	NoticeWarning          NoticeKind = "warning"
	NoticeValidationFailed NoticeKind = "validation-failed"
	NoticeModelMismatch    NoticeKind = "model-mismatch"
	NoticePrintFailed      NoticeKind = "print-failed"
	NoticeScanned          NoticeKind = "scanned"
	NoticeDisconnected     NoticeKind = "disconnected"
	NoticeModeChanged      NoticeKind = "mode-changed"
)

// Notice is an operator-facing event. Blocking notices ask the presentation
// layer for acknowledgement; the machine itself never waits for it.
type Notice struct {
	Kind     NoticeKind          `json:"kind"`
	Message  string              `json:"message"`
	Serial   string              `json:"serial,omitempty"`
	Step     int                 `json:"step"`
	Reasons  []validation.Reason `json:"reasons,omitempty"`
	Blocking bool                `json:"blocking,omitempty"`
	At       time.Time           `json:"at"`
}

// IsError reports notices that should be rendered as failures.
func (n Notice) IsError() bool {
	switch n.Kind {
	case NoticeWarning, NoticeValidationFailed, NoticeModelMismatch, NoticePrintFailed, NoticeDisconnected:
		return true
	}
	return false
}
