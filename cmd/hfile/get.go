package main

import (
	"errors"
	"net/url"
	"path"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/webmount/httpfile/blockcache"
)

var (
	getOutput  string
	getRetries uint
	getQuiet   bool
)

var getCmd = &cobra.Command{
	Use:   "get URL",
	Short: "download a file, resuming any previous partial transfer",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "destination path (defaults to the URL file name)")
	getCmd.Flags().UintVar(&getRetries, "retries", 3, "retry attempts on transient failure")
	getCmd.Flags().BoolVarP(&getQuiet, "quiet", "q", false, "suppress progress logging")
}

func runGet(cmd *cobra.Command, args []string) error {
	rawurl := args[0]
	dest := getOutput
	if dest == "" {
		u, err := url.Parse(rawurl)
		if err != nil {
			return err
		}
		dest = path.Base(u.Path)
		if dest == "/" || dest == "." {
			return errors.New("cannot derive a file name from the URL, use --output")
		}
	}

	header, err := requestHeaders()
	if err != nil {
		return err
	}
	mgr := blockcache.NewManager()
	defer mgr.Close()
	mgr.Headers = header
	if getQuiet {
		mgr.Logger = nil
	}

	// each attempt persists its progress, so a retry resumes rather than
	// restarts
	op := func() error {
		f, err := mgr.OpenTo(rawurl, dest)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := f.Complete(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(getRetries)))
}
