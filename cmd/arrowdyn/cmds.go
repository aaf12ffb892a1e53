package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fwojciec/arrowdyn"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errLimitReached = errors.New("row limit reached")

func addCommands(root *cobra.Command, mem memory.Allocator) {
	cmd := &cobra.Command{
		Use:   "schema file",
		Short: "Print the schema and leaf paths of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSchema(cmd.Context(), cmd.OutOrStdout(), args[0], mem)
		}}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "validate file...",
		Short: "Check that no null appears at a non-nullable position",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, _ := cmd.Flags().GetInt("jobs")
			return validateFiles(cmd.Context(), cmd.OutOrStdout(), args, jobs, mem)
		}}
	cmd.Flags().Int("jobs", 4, "number of files validated concurrently")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "project file",
		Short: "Print the schema and leaf mask selected by projection paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, _ := cmd.Flags().GetStringArray("path")
			return printProjection(cmd.Context(), cmd.OutOrStdout(), args[0], paths, mem)
		}}
	cmd.Flags().StringArray("path", nil, "projection path such as 0.1.0 (repeatable)")
	_ = cmd.MarkFlagRequired("path")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "rows file",
		Short: "Print rows as JSON lines, optionally through a projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, _ := cmd.Flags().GetStringArray("path")
			limit, _ := cmd.Flags().GetInt("limit")
			return printRows(cmd.Context(), cmd.OutOrStdout(), args[0], paths, limit, mem)
		}}
	cmd.Flags().StringArray("path", nil, "projection path such as 0.1.0 (repeatable)")
	cmd.Flags().Int("limit", 0, "maximum number of rows to print (0 for all)")
	root.AddCommand(cmd)
}

func isParquet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".parquet")
}

func readSchema(ctx context.Context, path string, mem memory.Allocator) (*arrow.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if isParquet(path) {
		r, err := arrowdyn.ReadParquet(ctx, f, nil, mem)
		if err != nil {
			return nil, err
		}
		defer r.Release()
		return r.Schema(), nil
	}

	r, err := ipc.NewReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open IPC stream")
	}
	defer r.Release()
	return r.Schema(), nil
}

// scanFile calls fn with each record of path. Parquet files are decoded
// through the projection's leaf mask; IPC records are passed whole and
// projected lazily by the caller.
func scanFile(ctx context.Context, path string, p *arrowdyn.Projection, mem memory.Allocator, fn func(arrow.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if isParquet(path) {
		r, err := arrowdyn.ReadParquet(ctx, f, p, mem)
		if err != nil {
			return err
		}
		defer r.Release()
		for r.Next() {
			if err := fn(r.Record()); err != nil {
				return err
			}
		}
		return r.Err()
	}

	records, err := arrowdyn.ReadIPC(f, mem)
	if err != nil {
		return err
	}
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func buildProjection(schema *arrow.Schema, specs []string) (*arrowdyn.Projection, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	paths := make([]arrowdyn.ProjectionPath, len(specs))
	for i, s := range specs {
		p, err := arrowdyn.ParseProjectionPath(s)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return arrowdyn.ProjectPaths(schema, paths)
}

func printSchema(ctx context.Context, w io.Writer, path string, mem memory.Allocator) error {
	schema, err := readSchema(ctx, path, mem)
	if err != nil {
		return errors.Wrapf(err, "failed to read schema of %s", path)
	}
	fmt.Fprintln(w, schema)
	fmt.Fprintln(w, "leaves:")
	for i, leaf := range arrowdyn.LeafPaths(schema) {
		fmt.Fprintf(w, "  %d\t%s\n", i, leaf)
	}
	return nil
}

func validateFiles(ctx context.Context, w io.Writer, paths []string, jobs int, mem memory.Allocator) error {
	results := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			results[i] = scanFile(ctx, path, nil, mem, func(rec arrow.Record) error {
				return arrowdyn.ValidateRecord(rec, nil)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for i, path := range paths {
		if results[i] != nil {
			failed++
			fmt.Fprintf(w, "%s: %v\n", path, results[i])
			continue
		}
		fmt.Fprintf(w, "%s: ok\n", path)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d files failed validation", failed, len(paths))
	}
	return nil
}

func printProjection(ctx context.Context, w io.Writer, path string, specs []string, mem memory.Allocator) error {
	schema, err := readSchema(ctx, path, mem)
	if err != nil {
		return errors.Wrapf(err, "failed to read schema of %s", path)
	}
	p, err := buildProjection(schema, specs)
	if err != nil {
		return errors.Wrap(err, "invalid projection")
	}

	fmt.Fprintln(w, p.Schema())
	if p.LeafMask().All() {
		fmt.Fprintf(w, "leaves: all %d\n", p.LeafMask().Len())
		return nil
	}
	fmt.Fprintf(w, "leaves: %v of %d\n", p.LeafMask().Indices(), p.LeafMask().Len())
	return nil
}

func printRows(ctx context.Context, w io.Writer, path string, specs []string, limit int, mem memory.Allocator) error {
	schema, err := readSchema(ctx, path, mem)
	if err != nil {
		return errors.Wrapf(err, "failed to read schema of %s", path)
	}
	p, err := buildProjection(schema, specs)
	if err != nil {
		return errors.Wrap(err, "invalid projection")
	}

	enc := json.NewEncoder(w)
	printed := 0
	err = scanFile(ctx, path, p, mem, func(rec arrow.Record) error {
		views, err := rowViews(rec, p, isParquet(path))
		if err != nil {
			return err
		}
		defer views.Release()

		for views.Next() {
			if limit > 0 && printed == limit {
				return errLimitReached
			}
			row, err := views.Row().ToOwned()
			if err != nil {
				return errors.Wrapf(err, "row %d", printed)
			}
			if err := enc.Encode(renderRow(views.Fields(), row)); err != nil {
				return err
			}
			printed++
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	return nil
}

// rowViews views rec through p unless the reader already applied it.
func rowViews(rec arrow.Record, p *arrowdyn.Projection, projected bool) (*arrowdyn.RowViews, error) {
	if p == nil || projected {
		return arrowdyn.NewRowViews(rec), nil
	}
	return p.RowViews(rec)
}
