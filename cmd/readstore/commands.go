package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/urfave/cli"

	"github.com/freeeve/readstore/internal/fastq"
	"github.com/freeeve/readstore/internal/httpapi"
	"github.com/freeeve/readstore/internal/logx"
	"github.com/freeeve/readstore/internal/seq"
	"github.com/freeeve/readstore/internal/store"
)

var (
	outFlag      = cli.StringFlag{Name: "out, o", Usage: "output `PREFIX`; the datastore suffix is added"}
	nameFlag     = cli.StringFlag{Name: "name", Usage: "datastore `NAME` [output base name]"}
	alphabetFlag = cli.StringFlag{Name: "alphabet", Value: "dna4", Usage: "read encoding [dna2|dna4]"}
	r1Flag       = cli.StringFlag{Name: "r1", Usage: "left reads `FASTQ` (.gz and .zst accepted)"}
	r2Flag       = cli.StringFlag{Name: "r2", Usage: "right reads `FASTQ`"}
	bufferFlag   = cli.StringFlag{Name: "buffer", Value: "0", Usage: "access buffer `SIZE` (e.g. 8m), 0 disables"}
	blockFlag    = cli.StringFlag{Name: "block-size", Value: "64k", Usage: "access buffer block `SIZE`"}
)

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:  "paired",
			Usage: "build a paired read datastore",
			Flags: []cli.Flag{
				r1Flag, r2Flag, outFlag, nameFlag, alphabetFlag,
				cli.IntFlag{Name: "min", Usage: "discard pairs with a read shorter than `N`"},
				cli.IntFlag{Name: "max", Value: 250, Usage: "truncate reads longer than `N`"},
				cli.IntFlag{Name: "frag", Usage: "expected fragment size `N`"},
				cli.StringFlag{Name: "orientation", Value: "fwrv", Usage: "library orientation [fwrv|rvfw]"},
			},
			Action: runPaired,
		},
		{
			Name:  "long",
			Usage: "build a long read datastore",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "in, i", Usage: "reads `FASTQ`"},
				outFlag, nameFlag, alphabetFlag,
				cli.IntFlag{Name: "min", Usage: "discard reads shorter than `N`"},
			},
			Action: runLong,
		},
		{
			Name:  "linked",
			Usage: "build a linked read datastore, sorted by tag",
			Flags: []cli.Flag{
				r1Flag, r2Flag, outFlag, nameFlag, alphabetFlag,
				cli.StringFlag{Name: "format", Value: "raw10x", Usage: "tag convention [raw10x|ucdavis10x]"},
				cli.IntFlag{Name: "max-read-len", Value: 250, Usage: "truncate reads longer than `N`"},
				cli.IntFlag{Name: "chunk-size", Value: store.DefaultChunkSize, Usage: "pairs per sorted chunk"},
				cli.IntFlag{Name: "workers", Value: 1, Usage: "goroutines sorting chunks"},
				cli.StringFlag{Name: "tmp-dir", Usage: "chunk arena parent `DIR`", EnvVar: "READSTORE_TMPDIR"},
			},
			Action: runLinked,
		},
		{
			Name:      "info",
			Usage:     "print a datastore summary",
			ArgsUsage: "FILE",
			Flags:     []cli.Flag{nameFlag},
			Action:    runInfo,
		},
		{
			Name:      "dump",
			Usage:     "write every read as FASTA to stdout",
			ArgsUsage: "FILE",
			Flags:     []cli.Flag{bufferFlag, blockFlag},
			Action:    runDump,
		},
		{
			Name:      "serve",
			Usage:     "serve a datastore over HTTP",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr", Value: ":8008", Usage: "listen `ADDRESS`"},
				bufferFlag, blockFlag,
			},
			Action: runServe,
		},
	}
}

func required(c *cli.Context, names ...string) error {
	for _, n := range names {
		if c.String(n) == "" {
			return fmt.Errorf("missing --%s", n)
		}
	}
	return nil
}

func openPair(c *cli.Context) (*fastq.File, *fastq.File, error) {
	left, err := fastq.Open(c.String("r1"))
	if err != nil {
		return nil, nil, err
	}
	right, err := fastq.Open(c.String("r2"))
	if err != nil {
		left.Close()
		return nil, nil, err
	}
	return left, right, nil
}

func logStats(m *metadata, stats store.BuildStats) {
	m.logger.Info().
		Str("path", stats.Path).
		Str("kind", stats.Kind.String()).
		Int("reads", stats.Reads).
		Int("pairs", stats.Pairs).
		Int("discarded", stats.Discarded).
		Int("truncated", stats.Truncated).
		Int("untagged", stats.Untagged).
		Int("chunks", stats.Chunks).
		Dur("elapsed", stats.Elapsed).
		Msg("datastore built")
}

func runPaired(c *cli.Context) error {
	if err := required(c, "r1", "r2", "out"); err != nil {
		return err
	}
	m := meta(c)
	alphabet, err := seq.ParseAlphabet(c.String("alphabet"))
	if err != nil {
		return err
	}
	orientation, err := store.ParseOrientation(c.String("orientation"))
	if err != nil {
		return err
	}
	left, right, err := openPair(c)
	if err != nil {
		return err
	}
	defer left.Close()
	defer right.Close()

	b := store.NewPairedBuilder(store.PairedOptions{
		Name:        c.String("name"),
		MinSize:     c.Int("min"),
		MaxSize:     c.Int("max"),
		FragSize:    c.Int("frag"),
		Orientation: orientation,
		Alphabet:    alphabet,
	})
	b.SetLogger(logx.Printf(m.logger))
	stats, err := b.Build(m.ctx, left, right, c.String("out"))
	if err != nil {
		return err
	}
	logStats(m, stats)
	return nil
}

func runLong(c *cli.Context) error {
	if err := required(c, "in", "out"); err != nil {
		return err
	}
	m := meta(c)
	alphabet, err := seq.ParseAlphabet(c.String("alphabet"))
	if err != nil {
		return err
	}
	src, err := fastq.Open(c.String("in"))
	if err != nil {
		return err
	}
	defer src.Close()

	b := store.NewLongBuilder(store.LongOptions{
		Name:     c.String("name"),
		MinSize:  c.Int("min"),
		Alphabet: alphabet,
	})
	b.SetLogger(logx.Printf(m.logger))
	stats, err := b.Build(m.ctx, src, c.String("out"))
	if err != nil {
		return err
	}
	logStats(m, stats)
	return nil
}

func runLinked(c *cli.Context) error {
	if err := required(c, "r1", "r2", "out"); err != nil {
		return err
	}
	m := meta(c)
	alphabet, err := seq.ParseAlphabet(c.String("alphabet"))
	if err != nil {
		return err
	}
	format, err := store.ParseLinkedFormat(c.String("format"))
	if err != nil {
		return err
	}
	left, right, err := openPair(c)
	if err != nil {
		return err
	}
	defer left.Close()
	defer right.Close()

	b := store.NewLinkedBuilder(store.LinkedOptions{
		Name:       c.String("name"),
		Format:     format,
		MaxReadLen: c.Int("max-read-len"),
		ChunkSize:  c.Int("chunk-size"),
		Workers:    c.Int("workers"),
		TempDir:    c.String("tmp-dir"),
		Alphabet:   alphabet,
	})
	b.SetLogger(logx.Printf(m.logger))
	stats, err := b.Build(m.ctx, left, right, c.String("out"))
	if err != nil {
		return err
	}
	logStats(m, stats)
	return nil
}

func openArg(c *cli.Context, name string) (store.ReadDatastore, error) {
	path := c.Args().First()
	if path == "" {
		return nil, errors.New("missing datastore FILE")
	}
	return store.Open(path, name)
}

// maybeBuffer wraps ds in an Access Buffer when --buffer is non-zero.
func maybeBuffer(c *cli.Context, ds store.ReadDatastore) (store.ReadDatastore, error) {
	size, err := parseSize(c.String("buffer"))
	if err != nil || size == 0 {
		return ds, err
	}
	blockSize, err := parseSize(c.String("block-size"))
	if err != nil {
		return nil, err
	}
	if blockSize <= 0 {
		blockSize = store.DefaultBlockSize
	}
	buf, err := store.NewBuffer(ds.(store.BlockSource), store.BufferOptions{
		BlockSize: int(blockSize),
		Blocks:    int(max(size/blockSize, 1)),
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func runInfo(c *cli.Context) error {
	ds, err := openArg(c, c.String("name"))
	if err != nil {
		return err
	}
	defer ds.Close()

	w := c.App.Writer
	fmt.Fprintln(w, ds)
	fmt.Fprintf(w, "  alphabet:     %s\n", ds.Alphabet())
	fmt.Fprintf(w, "  max read len: %d\n", ds.MaxReadLen())
	switch d := ds.(type) {
	case *store.PairedReads:
		fmt.Fprintf(w, "  orientation:  %s\n", d.Orientation())
		fmt.Fprintf(w, "  size range:   [%d, %d]\n", d.MinSize(), d.MaxSize())
		fmt.Fprintf(w, "  frag size:    %d\n", d.FragSize())
	case *store.LongReads:
		fmt.Fprintf(w, "  min size:     %d\n", d.MinSize())
	case *store.LinkedReads:
		fmt.Fprintf(w, "  format:       %s\n", d.Format())
	}
	return nil
}

func runDump(c *cli.Context) error {
	src, err := openArg(c, "")
	if err != nil {
		return err
	}
	defer src.Close()
	ds, err := maybeBuffer(c, src)
	if err != nil {
		return err
	}
	m := meta(c)
	m.logger.Debug().Str("datastore", fmt.Sprint(ds)).Msg("dumping")

	out := bufio.NewWriterSize(c.App.Writer, 1<<20)
	if err := dump(out, ds); err != nil {
		return err
	}
	if b, ok := ds.(*store.Buffer); ok {
		st := b.Stats()
		m.logger.Debug().Uint64("hits", st.Hits).Uint64("misses", st.Misses).Msg("access buffer")
	}
	return out.Flush()
}

// dump writes ds as FASTA. Paired reads are named <name>_<pair>/1 and /2.
// Unbuffered datastores are streamed front to back; a Buffer is read through
// its cache by index.
func dump(w *bufio.Writer, ds store.ReadDatastore) error {
	if r, ok := ds.(interface {
		Reads() iter.Seq2[seq.Sequence, error]
	}); ok {
		i := 0
		for s, err := range r.Reads() {
			if err != nil {
				return err
			}
			if err := writeFasta(w, ds, i, s); err != nil {
				return err
			}
			i++
		}
		return nil
	}
	var s seq.Sequence
	for i := 0; i < ds.Len(); i++ {
		if _, err := ds.LoadInto(i, &s); err != nil {
			return err
		}
		if err := writeFasta(w, ds, i, s); err != nil {
			return err
		}
	}
	return nil
}

func writeFasta(w *bufio.Writer, ds store.ReadDatastore, i int, s seq.Sequence) error {
	var err error
	if ds.Kind() == store.KindLong {
		_, err = fmt.Fprintf(w, ">%s_%d\n", ds.Name(), i)
	} else {
		_, err = fmt.Fprintf(w, ">%s_%d/%d\n", ds.Name(), i/2, i%2+1)
	}
	if err != nil {
		return err
	}
	if _, err := w.Write(s); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

func runServe(c *cli.Context) error {
	src, err := openArg(c, "")
	if err != nil {
		return err
	}
	defer src.Close()
	ds, err := maybeBuffer(c, src)
	if err != nil {
		return err
	}
	m := meta(c)

	srv := &http.Server{
		Addr:         c.String("addr"),
		Handler:      httpapi.NewRouter(m.logger, ds),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		m.logger.Info().Str("addr", srv.Addr).Str("datastore", fmt.Sprint(ds)).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-m.ctx.Done():
	}
	m.logger.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		m.logger.Warn().Err(err).Msg("http server shutdown error")
	}
	return nil
}
