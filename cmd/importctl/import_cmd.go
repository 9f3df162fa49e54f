package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/charset"
	"github.com/JonMunkholm/foodops/internal/core"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// maxPrintedErrors caps the per-row error listing.
const maxPrintedErrors = 20

type importOptions struct {
	kind          string
	file          string
	delimiter     string
	noHeader      bool
	encoding      string
	mappings      []string
	createMissing bool
	commit        bool
	name          string
}

func newImportCmd(a *app) *cobra.Command {
	o := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Parse, preview and optionally commit a data file",
		Long: "Parses the file, maps its columns, and prints a preview with row errors and\n" +
			"unmatched references. Nothing is written unless --commit is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, a, o)
		},
	}
	cmd.Flags().StringVar(&o.kind, "kind", "", "import kind (see 'importctl kinds')")
	cmd.Flags().StringVar(&o.file, "file", "", "CSV, TSV or XLSX file to import")
	cmd.Flags().StringVar(&o.delimiter, "delimiter", "", "field delimiter: comma, semicolon or tab")
	cmd.Flags().BoolVar(&o.noHeader, "no-header", false, "first row is data")
	cmd.Flags().StringVar(&o.encoding, "encoding", "", "force text encoding (utf-8, utf-16le, utf-16be, windows-1256, iso-8859-1)")
	cmd.Flags().StringArrayVar(&o.mappings, "map", nil, "override a column mapping as field=index; index '-' clears it")
	cmd.Flags().BoolVar(&o.createMissing, "create-missing", false, "create catalog entities for unmatched references on commit")
	cmd.Flags().BoolVar(&o.commit, "commit", false, "write the eligible rows as a new dataset")
	cmd.Flags().StringVar(&o.name, "name", "", "dataset name (defaults to kind and timestamp)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runImport(cmd *cobra.Command, a *app, o *importOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	def, ok := core.Get(o.kind)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownKind, o.kind)
	}

	svc, err := a.service(cmd)
	if err != nil {
		return err
	}

	opts, err := o.parseOptions(a)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(o.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", o.file, err)
	}

	sess, err := svc.StartImport(ctx, def.Info.Key, tabular.RawFile{Name: filepath.Base(o.file), Data: data}, opts)
	if sess != nil {
		defer func() { _ = svc.Discard(sess.ID()) }()
	}
	if err != nil {
		return err
	}

	for _, m := range o.mappings {
		field, idx, err := parseMapping(m)
		if err != nil {
			return err
		}
		if err := sess.SetColumn(field, idx); err != nil {
			return err
		}
	}

	view := sess.View()
	fmt.Fprintf(out, "File:     %s\n", view.FileName)
	fmt.Fprintf(out, "Format:   %s\n", view.Format)
	fmt.Fprintf(out, "Encoding: %s\n", view.Encoding)
	fmt.Fprintf(out, "Rows:     %d\n\n", view.RowCount)
	printMapping(out, def, view)

	if err := sess.GeneratePreview(ctx); err != nil {
		return err
	}

	records := sess.Records()
	printStats(out, sess.Stats())
	printRecordErrors(out, records)

	if ref := def.Info.Reference; ref != "" {
		snap, err := core.LoadSnapshot(ctx, svc.Catalog(), ref)
		if err != nil {
			return err
		}
		printUnmatched(out, ref, core.FindUnmatched(records, snap, ref))
	}

	if !o.commit {
		fmt.Fprintln(out, "\nDry run: nothing written. Re-run with --commit to import.")
		return nil
	}

	res, err := sess.Commit(ctx, o.name)
	if errors.Is(err, core.ErrUnresolvedEntities) && o.createMissing {
		for _, u := range sess.Unmatched() {
			if err := sess.Resolve(u.ExternalCode, core.Resolution{Action: core.ResolveCreateNew}); err != nil {
				return err
			}
		}
		res, err = sess.Commit(ctx, o.name)
	}
	if err != nil {
		var unresolved *core.UnresolvedError
		if errors.As(err, &unresolved) {
			return fmt.Errorf("%w (use --create-missing or add them to the catalog first)", err)
		}
		return err
	}

	printResult(out, res)
	return nil
}

func (o *importOptions) parseOptions(a *app) (tabular.Options, error) {
	opts := tabular.DefaultOptions()
	opts.HasHeader = !o.noHeader

	delim := o.delimiter
	if delim == "" {
		delim = a.defaultDelimiter()
	}
	d, err := tabular.ParseDelimiter(delim)
	if err != nil {
		return tabular.Options{}, err
	}
	opts.Delimiter = d

	if o.encoding != "" {
		enc, err := charset.Parse(o.encoding)
		if err != nil {
			return tabular.Options{}, err
		}
		opts.Encoding = &enc
	}
	return opts, nil
}

// parseMapping parses "field=index". An index of "-" or "none" clears the field.
func parseMapping(s string) (core.Field, int, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", 0, fmt.Errorf("invalid --map %q: want field=index", s)
	}
	field, ok := core.ParseField(strings.TrimSpace(name))
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", core.ErrUnknownField, name)
	}

	value = strings.TrimSpace(value)
	if value == "-" || strings.EqualFold(value, "none") {
		return field, core.Unset, nil
	}
	idx, err := strconv.Atoi(value)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --map %q: index must be a number", s)
	}
	return field, idx, nil
}

func printMapping(out io.Writer, def core.KindDefinition, view core.SessionView) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCOLUMN\tHEADER\tREQUIRED")
	for _, spec := range def.Fields {
		idx := view.Mapping.Index(spec.Field)
		column, header := "-", ""
		if idx != core.Unset {
			column = strconv.Itoa(idx)
			if idx < len(view.Headers) {
				header = view.Headers[idx]
			}
		}
		required := ""
		if spec.Required {
			required = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Field, column, header, required)
	}
	tw.Flush()

	if len(view.Missing) > 0 {
		names := make([]string, len(view.Missing))
		for i, f := range view.Missing {
			names[i] = string(f)
		}
		fmt.Fprintf(out, "Missing required: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintln(out)
}

func printStats(out io.Writer, st core.PreviewStats) {
	fmt.Fprintf(out, "Preview: %d rows, %d eligible, %d with errors, %d duplicates (%d within file)\n",
		st.TotalRows, st.EligibleRows, st.ErrorRows, st.DuplicateRows, st.DuplicateInFile)
}

func printRecordErrors(out io.Writer, records []core.CandidateRecord) {
	printed, total := 0, 0
	for _, r := range records {
		if !r.HasError {
			continue
		}
		total++
		if printed == maxPrintedErrors {
			continue
		}
		if printed == 0 {
			fmt.Fprintln(out, "\nErrors:")
		}
		fmt.Fprintf(out, "  row %d: %s\n", r.Row, strings.Join(r.Errors, "; "))
		printed++
	}
	if total > printed {
		fmt.Fprintf(out, "  ... and %d more\n", total-printed)
	}
}

func printUnmatched(out io.Writer, kind catalog.Kind, unmatched []core.UnmatchedEntity) {
	if len(unmatched) == 0 {
		return
	}
	fmt.Fprintf(out, "\nUnmatched %s codes: %d\n", kind, len(unmatched))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  CODE\tNAME\tROWS\tSUGGESTIONS")
	for _, u := range unmatched {
		suggestions := make([]string, len(u.Candidates))
		for i, c := range u.Candidates {
			suggestions[i] = fmt.Sprintf("%s (%s)", c.Name, c.Code)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\n", u.ExternalCode, u.ExternalName, u.OccurrenceCount, strings.Join(suggestions, ", "))
	}
	tw.Flush()
}

func printResult(out io.Writer, res *core.CommitResult) {
	fmt.Fprintf(out, "\nCommitted dataset %s (%s)\n", res.DatasetID, res.DatasetName)
	fmt.Fprintf(out, "  rows committed: %d\n", res.Committed)
	fmt.Fprintf(out, "  rows skipped:   %d\n", res.Skipped)
	for _, k := range catalog.Kinds {
		if n := res.Created[k]; n > 0 {
			fmt.Fprintf(out, "  %s created: %d\n", k, n)
		}
	}
}
