// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kar packs directories into kar archives and reads them back.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/devblok/hellotri/utility/kar"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/mmap"
)

var (
	author     string
	version    int64
	packOut    string
	extractOut string
	force      bool
)

var rootCmd = &cobra.Command{
	Use:          "kar",
	Short:        "Pack and unpack kar archives",
	SilenceUsage: true,
}

var packCmd = &cobra.Command{
	Use:   "pack DIR",
	Short: "Compress every file under DIR into an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return pack(args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list FILE",
	Short: "List the files in an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return list(args[0])
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE NAME",
	Short: "Write one file of an archive to stdout or --out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return extract(args[0], args[1])
	},
}

func currentUserName() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "out", "o", "out.kar", "destination file")
	packCmd.Flags().StringVar(&author, "author", currentUserName(), "author recorded in the archive")
	packCmd.Flags().Int64Var(&version, "version", 1, "archive version number")
	packCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite the destination file")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "destination file, stdout when empty")

	rootCmd.AddCommand(packCmd, listCmd, extractCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("kar failed")
	}
}

func pack(dir string) error {
	if _, err := os.Stat(packOut); err == nil && !force {
		return errors.New("destination file exists, will not overwrite")
	}

	builder, err := kar.NewBuilder(kar.Header{
		Author:      author,
		DateCreated: time.Now().Unix(),
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		log.WithField("file", rel).Debug("adding")
		return builder.Add(filepath.ToSlash(rel), f)
	})
	if err != nil {
		return err
	}

	dst, err := os.Create(packOut)
	if err != nil {
		return err
	}
	n, err := builder.WriteTo(dst)
	if err != nil {
		dst.Close()
		return err
	}
	log.WithFields(log.Fields{
		"file":  packOut,
		"bytes": n,
	}).Info("archive written")
	return dst.Close()
}

func openArchive(path string) (*kar.Archive, io.Closer, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	archive, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return archive, r, nil
}

func list(path string) error {
	archive, closer, err := openArchive(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	header := archive.Header()
	fmt.Printf("author: %s\nversion: %d\ncreated: %s\n\n",
		header.Author, header.Version, time.Unix(header.DateCreated, 0).Format(time.RFC3339))

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCOMPRESSED")
	for _, e := range archive.Files() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", e.Name, e.Size, e.CompressedSize)
	}
	return w.Flush()
}

func extract(path, name string) error {
	archive, closer, err := openArchive(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	r, err := archive.Open(name)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if extractOut != "" {
		f, err := os.Create(extractOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	_, err = io.Copy(out, r)
	return err
}
