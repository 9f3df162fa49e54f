package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/foodops/internal/core"
)

func newDatasetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List, inspect and export committed datasets",
	}
	cmd.AddCommand(newDatasetsListCmd(a))
	cmd.AddCommand(newDatasetsShowCmd(a))
	cmd.AddCommand(newDatasetsExportCmd(a))
	cmd.AddCommand(newDatasetsReferenceCmd(a))
	return cmd
}

func newDatasetsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List committed datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			list, err := svc.ListDatasets(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No datasets.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tROWS\tIMPORTED\tREF")
			for _, ds := range list {
				ref := ""
				if ds.Reference {
					ref = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					ds.ID, ds.Name, ds.Kind, ds.RowCount, ds.ImportedAt.Local().Format(time.DateTime), ref)
			}
			return tw.Flush()
		},
	}
}

func newDatasetsShowCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a dataset's rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			ds, err := svc.GetDataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			def, ok := core.Get(ds.Kind)
			if !ok {
				return fmt.Errorf("%w: %s", core.ErrUnknownKind, ds.Kind)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, %d rows, imported %s)\n\n",
				ds.Name, ds.Kind, len(ds.Rows), ds.ImportedAt.Local().Format(time.DateTime))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for i, h := range def.Headers() {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, h)
			}
			fmt.Fprintln(tw)
			for i, r := range ds.Rows {
				if limit > 0 && i == limit {
					break
				}
				for j, cell := range core.RecordCells(def, r) {
					if j > 0 {
						fmt.Fprint(tw, "\t")
					}
					fmt.Fprint(tw, cell)
				}
				fmt.Fprintln(tw)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if limit > 0 && len(ds.Rows) > limit {
				fmt.Fprintf(out, "... %d more rows\n", len(ds.Rows)-limit)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to print (0 for all)")
	return cmd
}

func newDatasetsExportCmd(a *app) *cobra.Command {
	var outPath, formatName string
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a dataset as an .xlsx workbook or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := core.ParseExportFormat(formatName)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			// Buffer so a failed export leaves no partial file behind.
			var buf bytes.Buffer
			ds, err := svc.ExportDataset(cmd.Context(), args[0], format, &buf)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = ds.Name + "." + string(format)
			}
			if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows to %s\n", len(ds.Rows), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file (defaults to <dataset name>.<format>)")
	cmd.Flags().StringVar(&formatName, "format", "xlsx", "file format: xlsx or csv")
	return cmd
}

func newDatasetsReferenceCmd(a *app) *cobra.Command {
	var clearRef bool
	cmd := &cobra.Command{
		Use:   "reference [ID]",
		Short: "Show, set or clear the reference dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearRef && len(args) > 0 {
				return errors.New("--clear takes no dataset id")
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case clearRef:
				if err := svc.SetReferenceDataset(cmd.Context(), ""); err != nil {
					return err
				}
				fmt.Fprintln(out, "Reference dataset cleared.")
			case len(args) == 1:
				if err := svc.SetReferenceDataset(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Reference dataset set to %s.\n", args[0])
			default:
				id, err := svc.ReferenceDataset(cmd.Context())
				if err != nil {
					return err
				}
				if id == "" {
					fmt.Fprintln(out, "No reference dataset.")
				} else {
					fmt.Fprintln(out, id)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearRef, "clear", false, "clear the reference dataset")
	return cmd
}
