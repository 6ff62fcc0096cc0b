// Package kegg downloads gene and protein sequences from the KEGG REST API.
package kegg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fermentlab/internal/blob"
)

// DefaultBaseURL is the public KEGG REST endpoint.
const DefaultBaseURL = "https://rest.kegg.jp"

// SeqType selects nucleotide or amino acid sequences.
type SeqType string

const (
	Nucleotide SeqType = "nucl"
	Protein    SeqType = "prot"
)

// Option returns the KEGG get option for the type.
func (t SeqType) Option() string {
	if t == Protein {
		return "aaseq"
	}
	return "ntseq"
}

// Ext returns the file extension written for the type.
func (t SeqType) Ext() string {
	if t == Protein {
		return ".faa"
	}
	return ".fna"
}

func (t SeqType) alphabet() alphabet.Alphabet {
	if t == Protein {
		return alphabet.Protein
	}
	return alphabet.DNAredundant
}

// ParseSeqTypes splits a comma separated list such as "nucl,prot".
func ParseSeqTypes(s string) ([]SeqType, error) {
	var out []SeqType
	seen := make(map[SeqType]bool)
	for _, part := range strings.Split(s, ",") {
		t := SeqType(strings.TrimSpace(part))
		switch t {
		case Nucleotide, Protein:
		default:
			return nil, fmt.Errorf("unknown sequence type %q (valid: nucl, prot)", part)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("kegg: GET %s: status %d", e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Entry summarizes one FASTA record.
type Entry struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Length      int    `json:"length"`
}

// Result is one fetched FASTA document.
type Result struct {
	Type    SeqType
	FASTA   []byte
	Entries []Entry
}

// Client talks to the KEGG REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *zap.Logger
}

// NewClient returns a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

// URL builds the get request for ids joined with '+'.
func (c *Client) URL(ids []string, t SeqType) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(strings.TrimSpace(id))
	}
	return c.BaseURL + "/get/" + strings.Join(escaped, "+") + "/" + t.Option()
}

// Fetch downloads the sequences of ids in one request and checks that the
// body is FASTA.
func (c *Client) Fetch(ctx context.Context, ids []string, t SeqType) (Result, error) {
	if len(ids) == 0 {
		return Result{}, fmt.Errorf("kegg: no accession given")
	}
	target := c.URL(ids, t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("kegg: build request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("kegg: GET %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("kegg: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &StatusError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	entries, err := scanFASTA(body, t)
	if err != nil {
		return Result{}, err
	}
	c.logger().Debug("kegg entries fetched",
		zap.String("type", string(t)),
		zap.Int("requested", len(ids)),
		zap.Int("returned", len(entries)))
	if len(entries) < len(ids) {
		c.logger().Warn("kegg returned fewer entries than requested",
			zap.Int("requested", len(ids)),
			zap.Int("returned", len(entries)))
	}
	return Result{Type: t, FASTA: body, Entries: entries}, nil
}

func scanFASTA(body []byte, t SeqType) ([]Entry, error) {
	r := fasta.NewReader(bytes.NewReader(body), linear.NewSeq("", nil, t.alphabet()))
	sc := seqio.NewScanner(r)
	var entries []Entry
	for sc.Next() {
		s := sc.Seq()
		entries = append(entries, Entry{ID: s.Name(), Description: s.Description(), Length: s.Len()})
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("kegg: response is not FASTA: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("kegg: response holds no sequences")
	}
	return entries, nil
}

// Download fetches every requested type concurrently and stores each as
// <base><ext>, replacing an earlier download. Results come back in the order
// of types.
func (c *Client) Download(ctx context.Context, store blob.Store, ids []string, types []SeqType, base string) ([]blob.Info, error) {
	infos := make([]blob.Info, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			res, err := c.Fetch(gctx, ids, t)
			if err != nil {
				return err
			}
			key := path.Clean(base + t.Ext())
			if _, err := store.Delete(gctx, key); err != nil {
				return fmt.Errorf("replace %s: %w", key, err)
			}
			info, err := store.Put(gctx, key, bytes.NewReader(res.FASTA), blob.PutOptions{
				ContentType: "text/x-fasta",
				Metadata: map[string]string{
					"accessions": strings.Join(ids, ","),
					"seq_type":   string(t),
				},
			})
			if err != nil {
				return fmt.Errorf("store %s: %w", key, err)
			}
			c.logger().Info("sequences saved", zap.String("key", key), zap.Int("entries", len(res.Entries)))
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}
