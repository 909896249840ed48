package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "hfile",
	Short:        "read remote HTTP resources like local files",
	SilenceUsage: true,
}

var flagHeaders []string

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&flagHeaders, "header", "H", nil,
		`extra request header, "Key: Value" (repeatable)`)
	rootCmd.AddCommand(catCmd, getCmd, statCmd)
}

func requestHeaders() (http.Header, error) {
	h := make(http.Header)
	for _, raw := range flagHeaders {
		k, v, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("malformed header %q", raw)
		}
		h.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return h, nil
}
