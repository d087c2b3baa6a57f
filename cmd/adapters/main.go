// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command adapters prints the adapters of every backend as JSON.
package main

import (
	"encoding/json"
	"os"

	"github.com/devblok/hellotri/gfx"
	_ "github.com/devblok/hellotri/gfx/soft"
	_ "github.com/devblok/hellotri/gfx/vkr"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var backendName string

var rootCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List graphics adapters as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backends := gfx.Backends()
		if backendName != "" {
			b, err := gfx.Lookup(backendName)
			if err != nil {
				return err
			}
			backends = []gfx.Backend{b}
		}

		out := map[string][]gfx.AdapterInfo{}
		for _, b := range backends {
			infos, err := b.Adapters()
			if err != nil {
				log.WithError(err).WithField("backend", b.Name()).Warn("listing adapters failed")
				continue
			}
			out[b.Name()] = infos
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&backendName, "backend", "", "only list adapters of this backend")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("adapters failed")
	}
}
