package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/mnemo/internal/dagger"
)

// CheckGoModTidy fails when "go mod tidy" would change go.mod or go.sum.
// A missing go.sum counts as untidy.
//
// +check
func (t *Mnemo) CheckGoModTidy(ctx context.Context) (string, error) {
	out, err := t.goContainer().
		WithExec([]string{"sh", "-c", "cp go.mod go.mod.HEAD && { cp go.sum go.sum.HEAD || : > go.sum.HEAD; }"}).
		WithExec([]string{"go", "mod", "tidy"}).
		WithExec([]string{
			"sh", "-c",
			"diff -u go.mod.HEAD go.mod && diff -u go.sum.HEAD go.sum",
		}).
		Stdout(ctx)

	var e *dagger.ExecError
	if errors.As(err, &e) {
		return "", fmt.Errorf(
			"module files drift from 'go mod tidy':\n\n%s",
			e.Stdout,
		)
	} else if err != nil {
		return "", fmt.Errorf("running go mod tidy: %w", err)
	}

	return fmt.Sprintf("module files are tidy %s", out), nil
}
