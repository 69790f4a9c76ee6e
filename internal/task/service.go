package task

import "context"

type TaskServiceInterface interface {
	StartImport(ctx context.Context, req ImportRequest) (*Ticket, error)
	StartExport(ctx context.Context, req ExportRequest) (*Ticket, error)
	GetStatus(ctx context.Context, token string) (*StatusView, error)
	ListTasks(ctx context.Context, ownerID int) ([]StatusView, error)
	Cancel(ctx context.Context, token string) (*Ticket, error)
	Download(ctx context.Context, token string) (*Download, error)
}

// TaskService is the HTTP-facing facade over the dispatcher and the gate.
type TaskService struct {
	*Dispatcher
	*Gate
}

func NewTaskService(dispatcher *Dispatcher, gate *Gate) TaskServiceInterface {
	return &TaskService{Dispatcher: dispatcher, Gate: gate}
}
