// Command dispatch starts an import or export as the system identity, for
// cron-style scheduled runs. It prints the task token and exits without
// waiting for the worker.
//
//	dispatch -export schedules -term 2024-fall -program CS -level 2
//	dispatch -import students -file roster.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bulkops/internal/config"
	"bulkops/internal/db"
	"bulkops/internal/observability"
	"bulkops/internal/queue"
	"bulkops/internal/storage"
	"bulkops/internal/task"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		importSubtype = flag.String("import", "", "import subtype to start (students, enrollments)")
		file          = flag.String("file", "", "file to import")
		exportSubtype = flag.String("export", "", "export subtype to start (schedules)")
		term          = flag.String("term", "", "export filter: term")
		nationalID    = flag.String("national-id", "", "export filter: a single student's national id")
		program       = flag.String("program", "", "export filter: program name")
		level         = flag.String("level", "", "export filter: level name")
	)
	flag.Parse()

	if (*importSubtype == "") == (*exportSubtype == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -import or -export is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	observability.SetupLogging(&cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB := db.Init(&cfg.DB)
	defer sqlDB.Close()

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open storage")
	}
	defer store.Close()

	broker, err := queue.New(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to queue")
	}
	defer broker.Close()

	dispatcher := task.NewDispatcher(task.NewTaskRepository(sqlDB), broker, store, cfg.Import.MaxUploadBytes)

	var ticket *task.Ticket
	if *importSubtype != "" {
		ticket, err = startImport(ctx, dispatcher, *importSubtype, *file)
	} else {
		filters := map[string]string{}
		for k, v := range map[string]string{
			"term":        *term,
			"national_id": *nationalID,
			"program":     *program,
			"level":       *level,
		} {
			if v = strings.TrimSpace(v); v != "" {
				filters[k] = v
			}
		}
		ticket, err = dispatcher.StartExport(ctx, task.ExportRequest{
			Subtype: *exportSubtype,
			OwnerID: task.SystemOwnerID,
			Filters: filters,
		})
	}
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start task")
	}

	logrus.WithFields(logrus.Fields{
		"task_id": ticket.TaskID,
		"status":  ticket.Status,
	}).Info("Task queued")
	fmt.Println(ticket.Token)
}

func startImport(ctx context.Context, d *task.Dispatcher, subtype, path string) (*task.Ticket, error) {
	if path == "" {
		return nil, fmt.Errorf("-file is required for -import")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return d.StartImport(ctx, task.ImportRequest{
		Subtype:  subtype,
		OwnerID:  task.SystemOwnerID,
		Filename: info.Name(),
		Size:     info.Size(),
		Body:     f,
	})
}
