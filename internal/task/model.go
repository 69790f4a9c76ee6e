package task

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition is the lifecycle table. processing -> processing is a retry
// re-delivery. queued -> failed covers tasks that never reached a worker.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusCancelled || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

type Type string

const (
	TypeImport Type = "import"
	TypeExport Type = "export"
)

// Operation is the closed set of bulk operations a worker can run.
type Operation string

const (
	OpStudentImport    Operation = "student_import"
	OpEnrollmentImport Operation = "enrollment_import"
	OpScheduleExport   Operation = "schedule_export"
)

type operationKind struct {
	Type    Type
	Subtype string
}

var operations = map[Operation]operationKind{
	OpStudentImport:    {Type: TypeImport, Subtype: "students"},
	OpEnrollmentImport: {Type: TypeImport, Subtype: "enrollments"},
	OpScheduleExport:   {Type: TypeExport, Subtype: "schedules"},
}

// Operations lists every known operation.
func Operations() []Operation {
	return []Operation{OpStudentImport, OpEnrollmentImport, OpScheduleExport}
}

func (o Operation) Kind() (Type, string, error) {
	k, ok := operations[o]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownOperation, o)
	}
	return k.Type, k.Subtype, nil
}

// ResolveOperation maps a (type, subtype) pair back to its operation.
func ResolveOperation(t Type, subtype string) (Operation, error) {
	for op, k := range operations {
		if k.Type == t && k.Subtype == subtype {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnknownOperation, t, subtype)
}

// Payload is a free-form JSON object stored in a JSONB column.
type Payload map[string]any

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Payload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Payload", src)
	}
	return json.Unmarshal(raw, p)
}

func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p Payload) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// SystemOwnerID marks tasks started by scheduled runs rather than a user.
const SystemOwnerID = 0

type Task struct {
	ID         int64     `json:"id"`
	Token      string    `json:"token"`
	Type       Type      `json:"type"`
	Subtype    string    `json:"subtype"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Parameters Payload   `json:"parameters"`
	Result     Payload   `json:"result,omitempty"`
	Error      *string   `json:"error,omitempty"`
	Message    *string   `json:"message,omitempty"`
	OwnerID    int       `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t *Task) Operation() (Operation, error) {
	return ResolveOperation(t.Type, t.Subtype)
}

// Ticket is returned to callers that start or cancel an operation.
type Ticket struct {
	TaskID int64  `json:"task_id"`
	Token  string `json:"token"`
	Status Status `json:"status"`
}

// Outcome is what an operation hands back to the runner on success.
// Artifacts lists storage keys to delete if the task turns out to be
// cancelled before it could be finished.
type Outcome struct {
	Result    Payload
	Message   string
	Artifacts []string
}
