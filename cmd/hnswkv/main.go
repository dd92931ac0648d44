// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Command hnswkv is a standalone CLI for exercising the index registry
// outside of a host server: it opens a LevelDB-backed store directly and
// dispatches the same §6 command surface the host would.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hnswkv/hnswkv"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "hnswkv",
	Short: "CLI for the hnswkv approximate nearest neighbor index",
	Long:  "A command-line interface for creating HNSW indexes, inserting and querying vectors, backed by a local LevelDB store.",
}

func openServer() (*hnswkv.Server, error) {
	store, err := hnswkv.OpenStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}
	return hnswkv.Open(store), nil
}

func printReply(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage indexes",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dim, _ := cmd.Flags().GetInt("dim")
		m, _ := cmd.Flags().GetInt("m")
		efcon, _ := cmd.Flags().GetInt("efcon")

		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		reply, err := s.Dispatch("index.create", []string{
			args[0], "dim", strconv.Itoa(dim), "m", strconv.Itoa(m), "efcon", strconv.Itoa(efcon),
		})
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var indexGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show index metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		reply, err := s.Dispatch("index.get", args)
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var indexDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete an index and every node it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		reply, err := s.Dispatch("index.del", args)
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage nodes within an index",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add <index> <name> <v1,v2,...>",
	Short: "Insert a vector under a name",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		components := strings.Split(args[2], ",")
		reply, err := s.Dispatch("node.add", append([]string{args[0], args[1]}, components...))
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var nodeGetCmd = &cobra.Command{
	Use:   "get <index> <name>",
	Short: "Fetch a node's vector and adjacency",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		reply, err := s.Dispatch("node.get", args)
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var nodeDelCmd = &cobra.Command{
	Use:   "del <index> <name>",
	Short: "Delete a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		reply, err := s.Dispatch("node.del", args)
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <index> <k> <q1,q2,...>",
	Short: "Run a top-k approximate nearest neighbor search",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openServer()
		if err != nil {
			return err
		}
		defer s.Close()

		components := strings.Split(args[2], ",")
		reply, err := s.Dispatch("search.kann", append([]string{args[0], args[1]}, components...))
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "hnswkv.db", "path to the LevelDB store")

	indexCreateCmd.Flags().Int("dim", 0, "vector dimensionality (required)")
	indexCreateCmd.Flags().Int("m", 16, "target out-degree per node per non-zero layer")
	indexCreateCmd.Flags().Int("efcon", 200, "candidate-list width during insertion")
	indexCreateCmd.MarkFlagRequired("dim")

	indexCmd.AddCommand(indexCreateCmd, indexGetCmd, indexDelCmd)
	nodeCmd.AddCommand(nodeAddCmd, nodeGetCmd, nodeDelCmd)
	rootCmd.AddCommand(indexCmd, nodeCmd, searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
