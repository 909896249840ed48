package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/webmount/httpfile"
	"github.com/webmount/httpfile/chunkio"
)

var (
	catStart     int64
	catEnd       int64
	catOutput    string
	catLimitRate int64
)

var catCmd = &cobra.Command{
	Use:   "cat URL",
	Short: "stream a byte range to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

func init() {
	catCmd.Flags().Int64Var(&catStart, "start", 0, "first byte offset")
	catCmd.Flags().Int64Var(&catEnd, "end", -1, "last byte offset, inclusive (-1 means end of file)")
	catCmd.Flags().StringVarP(&catOutput, "output", "o", "", "write to a file instead of stdout")
	catCmd.Flags().Int64Var(&catLimitRate, "limit-rate", 0, "cap transfer speed in bytes per second")
}

func runCat(cmd *cobra.Command, args []string) error {
	header, err := requestHeaders()
	if err != nil {
		return err
	}
	f, err := httpfile.Open(args[0], &httpfile.Options{
		Headers: header,
		Start:   catStart,
		Context: cmd.Context(),
	})
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = f
	if catEnd >= 0 {
		if catEnd < catStart {
			return fmt.Errorf("end %d before start %d", catEnd, catStart)
		}
		src = io.LimitReader(f, catEnd-catStart+1)
	}

	out := io.Writer(os.Stdout)
	if catOutput != "" {
		fp, err := os.Create(catOutput)
		if err != nil {
			return err
		}
		defer fp.Close()
		out = fp
	}

	var limiter *rate.Limiter
	if catLimitRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(catLimitRate), chunkio.DefaultChunkSize)
	}
	for chunk, err := range chunkio.ChunksBuffer(src, -1, nil, nil) {
		if err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.WaitN(cmd.Context(), len(chunk)); err != nil {
				return err
			}
		}
		if _, err := out.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}
