package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"fermentlab/internal/kegg"
)

func (a *app) keggCmd() *cobra.Command {
	var accessions, seqTypes, outfile string
	cmd := &cobra.Command{
		Use:   "kegg",
		Short: "Download gene or protein sequences from KEGG",
		Long: `Downloads the FASTA sequences of one or more KEGG entries. All accessions are
fetched in one request per sequence type and written to <outfile>.fna for
genes and <outfile>.faa for proteins.

Example:
  gcreport kegg -a eco:b0001,eco:b0002 -t nucl,prot -o seqs/thr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runKEGG(accessions, seqTypes, outfile)
		},
	}
	cmd.Flags().StringVarP(&accessions, "accession", "a", "", "Comma-separated KEGG accessions (required)")
	cmd.Flags().StringVarP(&seqTypes, "seq-type", "t", "", "nucl, prot or both, comma-separated (required)")
	cmd.Flags().StringVarP(&outfile, "outfile", "o", "", "Output path without extension (required)")
	_ = cmd.MarkFlagRequired("accession")
	_ = cmd.MarkFlagRequired("seq-type")
	_ = cmd.MarkFlagRequired("outfile")
	return cmd
}

func (a *app) runKEGG(accessions, seqTypes, outfile string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var ids []string
	for _, id := range strings.Split(accessions, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return errors.New("no accession given")
	}
	types, err := kegg.ParseSeqTypes(seqTypes)
	if err != nil {
		return err
	}

	store, prefix, err := a.artifactStore(ctx, filepath.Dir(outfile))
	if err != nil {
		return err
	}
	base := filepath.Base(outfile)
	if prefix != "" && prefix != "." {
		base = prefix + "/" + base
	}
	client := kegg.NewClient(a.cfg.KEGG.BaseURL, a.cfg.KEGGTimeout(), a.logger)
	infos, err := client.Download(ctx, store, ids, types, base)
	if err != nil {
		return fmt.Errorf("failed to download sequences: %w", err)
	}
	for _, info := range infos {
		fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", info.Key, info.Size)
	}
	return nil
}
