package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"bulkops/internal/academic"

	"github.com/sirupsen/logrus"
)

// ScheduleSource is the read side the packager needs from the academic
// store.
type ScheduleSource interface {
	ScheduleCandidates(ctx context.Context, f academic.ScheduleFilter) ([]academic.Student, error)
	TermEnrollments(ctx context.Context, studentID uint, term string) ([]academic.Enrollment, error)
}

// Tick is called after every candidate. A non-nil error stops packaging.
type Tick func(ctx context.Context, done, total int) error

type Bundle struct {
	Path            string
	TotalCandidates int
	Produced        int
	Skipped         int
}

type Packager struct {
	source   ScheduleSource
	renderer Renderer
}

func NewPackager(source ScheduleSource, renderer Renderer) *Packager {
	return &Packager{source: source, renderer: renderer}
}

// Candidates lists the students the filter selects.
func (p *Packager) Candidates(ctx context.Context, f academic.ScheduleFilter) ([]academic.Student, error) {
	students, err := p.source.ScheduleCandidates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to select students: %w", err)
	}
	return students, nil
}

// Build writes one PDF per student into a ZIP under dir. Students whose
// document cannot be produced are skipped. On error the partial file is
// removed.
func (p *Packager) Build(ctx context.Context, dir, term string, students []academic.Student, tick Tick) (b *Bundle, err error) {
	f, err := os.CreateTemp(dir, "export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	b = &Bundle{Path: f.Name(), TotalCandidates: len(students)}
	zw := zip.NewWriter(f)
	names := map[string]bool{}

	for i, s := range students {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, genErr := p.render(ctx, s, term)
		if genErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.WithError(genErr).WithField("student_id", s.ID).Warn("Skipping schedule that failed to generate")
			b.Skipped++
		} else {
			w, err := zw.Create(entryName(s, names))
			if err != nil {
				return nil, fmt.Errorf("failed to add zip entry: %w", err)
			}
			if _, err := w.Write(doc); err != nil {
				return nil, fmt.Errorf("failed to write zip entry: %w", err)
			}
			b.Produced++
		}

		if tick != nil {
			if err := tick(ctx, i+1, len(students)); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close staging file: %w", err)
	}
	return b, nil
}

func (p *Packager) render(ctx context.Context, s academic.Student, term string) ([]byte, error) {
	enrollments, err := p.source.TermEnrollments(ctx, s.ID, term)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}

	var buf bytes.Buffer
	if err := p.renderer.Render(&buf, s, term, enrollments); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// entryName is <academic number>_<name>.pdf, suffixed until it differs
// from every name already in the archive. Names are compared without case
// so extraction on case-insensitive filesystems keeps every file.
func entryName(s academic.Student, seen map[string]bool) string {
	base := unsafeName.ReplaceAllString(s.AcademicNumber+"_"+s.Name, "_")
	base = strings.Trim(base, "_.")
	if base == "" {
		base = fmt.Sprintf("student_%d", s.ID)
	}

	name := base + ".pdf"
	for n := 2; seen[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s_%d.pdf", base, n)
	}
	seen[strings.ToLower(name)] = true
	return name
}
