package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webmount/httpfile"
)

var statCmd = &cobra.Command{
	Use:   "stat URL",
	Short: "print remote file metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

func runStat(cmd *cobra.Command, args []string) error {
	header, err := requestHeaders()
	if err != nil {
		return err
	}
	f, err := httpfile.Open(args[0], &httpfile.Options{
		Headers: header,
		Context: cmd.Context(),
	})
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name:    %s\n", f.Name())
	fmt.Fprintf(out, "size:    %d\n", f.Size())
	fmt.Fprintf(out, "ranges:  %t\n", f.Seekable())
	fmt.Fprintf(out, "chunked: %t\n", f.Chunked())
	return nil
}
