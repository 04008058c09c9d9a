package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"harvest/internal/client"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one index batch immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.Process(cmd.Context(), count)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d jobs (%d succeeded), %d remaining\n",
					resp.Processed, resp.Succeeded, resp.Remaining)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Batch size (default from config)")
	return cmd
}

func newCandidatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "List catalog files eligible for indexing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.Candidates(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Candidates) == 0 {
					fmt.Fprintln(out, "No candidates; every cataloged file is indexed")
					return nil
				}
				rows := make([][]string, 0, len(resp.Candidates))
				for _, c := range resp.Candidates {
					rows = append(rows, []string{
						strconv.FormatInt(c.FileID, 10),
						c.Filename,
						c.MimeType,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"File ID", "Filename", "Type"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import every ready package into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.ImportAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, %d duplicates, %d errors\n",
					resp.Created, resp.Duplicates, resp.Errors)
				return nil
			})
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var autoIndex bool

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Catalog a local file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.Ingest(cmd.Context(), args[0], autoIndex)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cataloged %d, %d duplicates, %d errors\n",
					resp.Created, resp.Duplicates, resp.Errors)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&autoIndex, "index", false, "Queue index jobs for newly cataloged files")
	return cmd
}
