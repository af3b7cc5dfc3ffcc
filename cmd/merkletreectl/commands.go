package main

import (
	"encoding/hex"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	merkletree "github.com/kocubinski/merkletree"
)

func openTree(cmd *cobra.Command, name string) (*merkletree.Tree, error) {
	prefix, _ := cmd.Flags().GetString("prefix")
	cfg := merkletree.Config{Prefix: prefix}
	return merkletree.Open(name, cfg)
}

func openCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <name>",
		Short: "Open a tree and report its current metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer t.Close()
			root, err := t.RootHashOnDisk()
			if err != nil {
				return err
			}
			fmt.Printf("tree=%s leaves=%s depth=%d rootHash=%s\n",
				t.Name(), humanize.Comma(int64(t.NumLeaves())), t.Depth(), hexOrNilHash(root))
			return nil
		},
	}
}

func putCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <key> <value>",
		Short: "Write one key-value pair and flush it to durable storage",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer t.Close()

			if err := t.Put([]byte(args[1]), []byte(args[2])); err != nil {
				return err
			}
			root, err := t.RootHash()
			if err != nil {
				return err
			}
			if err := t.Flush(); err != nil {
				return err
			}
			log.Info().Str("tree", args[0]).Str("rootHash", hexOrNilHash(root)).Msg("put committed and flushed")
			return nil
		},
	}
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> <key>",
		Short: "Read a key (pending, then committed, then durable)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer t.Close()

			v, err := t.Get([]byte(args[1]))
			if err != nil {
				return err
			}
			if v == nil {
				fmt.Println("<not found>")
				return nil
			}
			fmt.Println(string(v))
			return nil
		},
	}
}

func rootHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "root-hash <name>",
		Short: "Print the current root hash, blocking on pending drain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer t.Close()

			h, err := t.RootHash()
			if err != nil {
				return err
			}
			fmt.Println(hexOrNilHash(h))
			return nil
		},
	}
}

func flushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush <name>",
		Short: "Flush pending and committed state to durable storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer t.Close()
			return t.Flush()
		},
	}
}

func cloneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <name> <new-name>",
		Short: "Flush and checkpoint a tree into a fresh named tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer t.Close()

			clone, err := t.Clone(args[1])
			if err != nil {
				return err
			}
			defer clone.Close()
			log.Info().Str("src", args[0]).Str("dst", args[1]).
				Str("leaves", humanize.Comma(int64(clone.NumLeaves()))).Msg("clone complete")
			return nil
		},
	}
}

func updateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <name> <src-name>",
		Short: "Fast-forward a tree to match another tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			defer dst.Close()

			src, err := openTree(cmd, args[1])
			if err != nil {
				return err
			}
			defer src.Close()

			if err := dst.Update(src); err != nil {
				return err
			}
			log.Info().Str("dst", args[0]).Str("src", args[1]).Msg("update complete")
			return nil
		},
	}
}

func closeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <name>",
		Short: "Open, flush, and explicitly close a tree, then confirm it reports closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := openTree(cmd, args[0])
			if err != nil {
				return err
			}
			if err := t.Close(); err != nil {
				return err
			}
			if !t.IsClosed() {
				return fmt.Errorf("tree reports not closed after Close")
			}
			log.Info().Str("tree", args[0]).Msg("closed")
			return nil
		},
	}
}

func hexOrNilHash(h *[32]byte) string {
	if h == nil {
		return "<nil>"
	}
	return hex.EncodeToString(h[:])
}
