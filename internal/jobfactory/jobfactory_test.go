package jobfactory

import (
	"context"
	"testing"
)

type noopJob struct{ ran bool }

func (j *noopJob) Execute(ctx context.Context, jec *ExecutionContext) error {
	j.ran = true
	return nil
}

func TestRegistry_NewJob(t *testing.T) {
	r := NewRegistry()
	var last *noopJob
	r.Register("noop", func() Job {
		last = &noopJob{}
		return last
	})

	j, err := r.NewJob("noop")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Execute(context.Background(), &ExecutionContext{}); err != nil {
		t.Fatal(err)
	}
	if !last.ran {
		t.Fatal("expected job to have run")
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.NewJob("missing"); err == nil {
		t.Fatal("expected an error for an unregistered job type")
	}
}
