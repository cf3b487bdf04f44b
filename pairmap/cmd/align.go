// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/PairMap/pairmap/device"
	"github.com/shenwei356/PairMap/pairmap/persist"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
	"github.com/shenwei356/PairMap/pairmap/reference"
	"github.com/shenwei356/PairMap/pairmap/stats"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align paired-end reads to a reference",
	Long: `Align paired-end reads to a reference

Input:
  1. Reference: a (gzipped) FASTA/Q file, or a directory of them (-r/--ref).
     Sequences are concatenated in the order of the files (sorted by path)
     and of the records, and all degenerate bases are treated as A.
  2. Reads: two (gzipped) FASTA/Q files of mate 1 and mate 2 (-1, -2),
     in the same order. Mate IDs may differ only in the suffix "/1" or "/2".

Algorithm:
  1. For each batch of read pairs, each mate in turn is the anchor.
  2. Seeds of the anchor mate are looked up in the k-mer index. Reads whose
     hits fail to give an alignment are re-seeded with denser seeds,
     up to --max-reseed times.
  3. Hits are extended in rounds. The number of hits per read of a round
     grows as the active reads become fewer, up to --max-ext per read.
     A read stops after --max-trys extensions without improvement.
  4. For each anchor alignment, the opposite mate is aligned in the
     window of --max-insert bases. The best and the second-best pairs
     are kept for every read.
  5. Both pairs are traced back, and re-scored with gap-affine penalties.

Output format:
  Tab-delimited format with 12 columns, with 1-based positions:

    1.  read,        Read ID.
    2.  mate,        Mate (1 or 2).
    3.  rank,        best or second.
    4.  paired,      Concordantly paired (Y) or not (N).
    5.  strand,      Strand of the alignment.
    6.  seqid,       Reference sequence ID.
    7.  pos,         Start of the alignment.
    8.  score,       Score of the rough alignment (negative edit distance).
    9.  final_score, Score of the final alignment (negative gap-affine penalty).
    10. ed,          Edit distance of the final alignment.
    11. cigar,       CIGAR string.
    12. md,          MD string.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		outFile := getFlagString(cmd, "out-file")

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
			setLogLevel(opt.Debug)
		}

		verbose := opt.Verbose
		outputLog := opt.Verbose || opt.Log2File

		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------
		// options

		refPath := getFlagString(cmd, "ref")
		if refPath == "" {
			checkError(fmt.Errorf("flag -r/--ref needed"))
		}
		refPattern := getFlagString(cmd, "ref-pattern")
		reRef, err := regexp.Compile(refPattern)
		checkError(errors.Wrapf(err, "failed to parse regular expression for matching sequence files: %s", refPattern))

		file1 := getFlagString(cmd, "read1")
		file2 := getFlagString(cmd, "read2")
		if file1 == "" || file2 == "" {
			checkError(fmt.Errorf("flags -1/--read1 and -2/--read2 needed"))
		}
		if isStdin(file1) && isStdin(file2) {
			checkError(fmt.Errorf("only one of the mates can be read from stdin"))
		}
		outFileClean := filepath.Clean(outFile)
		for _, file := range []string{file1, file2} {
			if !isStdin(file) && !isStdin(outFile) && filepath.Clean(file) == outFileClean {
				checkError(fmt.Errorf("out file should not be one of the input files: %s", file))
			}
		}

		refOpt := &reference.Options{
			SeedLen:      getFlagPositiveInt(cmd, "seed-len"),
			SeedInterval: getFlagPositiveInt(cmd, "seed-interval"),
		}
		checkError(reference.CheckOptions(refOpt))

		params := &pipeline.Params{
			MaxDist:   getFlagUint32(cmd, "max-dist"),
			MaxReseed: getFlagUint32(cmd, "max-reseed"),
			MaxExt:    getFlagUint32(cmd, "max-ext"),
			MaxTrys:   getFlagUint32(cmd, "max-trys"),
			TopSeed:   getFlagBool(cmd, "top-seed"),

			MinInsert: getFlagUint32(cmd, "min-insert"),
			MaxInsert: getFlagUint32(cmd, "max-insert"),

			BatchSize: getFlagUint32(cmd, "batch-size"),
			KeepStats: getFlagBool(cmd, "keep-stats"),

			PersistBatch:     getFlagInt(cmd, "persist-batch"),
			PersistSeeding:   getFlagInt(cmd, "persist-seeding"),
			PersistExtension: getFlagInt(cmd, "persist-extension"),
			PersistFile:      getFlagString(cmd, "persist-file"),
		}
		checkError(pipeline.CheckParams(params))

		readBatch := getFlagPositiveInt(cmd, "read-batch")
		printStats := getFlagBool(cmd, "stats")
		metricsFile := getFlagString(cmd, "metrics-file")
		plotFile := getFlagString(cmd, "hits-plot")
		if plotFile != "" && !params.KeepStats {
			checkError(fmt.Errorf("flag --hits-plot needs --keep-stats"))
		}

		if outputLog {
			log.Infof("PairMap v%s", VERSION)
			log.Info("  https://github.com/shenwei356/PairMap")
			log.Info()
		}

		// ---------------------------------------------------------------
		// reference

		refFiles, err := referenceFiles(refPath, reRef, opt.NumCPUs)
		checkError(err)
		if outputLog {
			log.Infof("building the seed index from %d reference file(s) ...", len(refFiles))
		}

		timeStart1 := time.Now()
		idx, err := reference.NewIndex(refOpt.SeedLen)
		checkError(err)

		var record *fastx.Record
		for _, file := range refFiles {
			fastxReader, err := fastx.NewReader(nil, file, "")
			checkError(errors.Wrap(err, file))
			for {
				record, err = fastxReader.Read()
				if err != nil {
					if err == io.EOF {
						break
					}
					checkError(errors.Wrap(err, file))
					break
				}
				if len(record.Seq.Seq) == 0 {
					continue
				}
				checkError(idx.AddSeq(string(record.ID), bytes.ToUpper(record.Seq.Seq)))
			}
			fastxReader.Close()
		}
		if idx.Genome().NumSeqs() == 0 {
			checkError(fmt.Errorf("no valid sequences in the reference"))
		}
		idx.Build()

		if outputLog {
			log.Infof("  %s, %s seeds, built in %s", idx.Genome(),
				humanize.Comma(int64(idx.Rows())), time.Since(timeStart1))
			log.Info()
		}

		kernels, err := reference.NewKernels(idx, refOpt)
		checkError(err)

		// ---------------------------------------------------------------
		// output

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		writer, err := newTSVWriter(outfh, idx.Genome())
		checkError(err)
		writer.WriteHeader()

		aligner, err := pipeline.NewAligner(params, device.New(opt.NumCPUs), kernels, writer)
		checkError(err)
		if opt.Debug {
			aligner.SetLogger(log)
		}

		var promSink *stats.PrometheusSink
		if metricsFile != "" {
			promSink = stats.NewPrometheusSink("pairmap")
			aligner.SetStatsSink(promSink)
		}

		var persister *persist.Writer
		if params.PersistBatch >= 0 {
			trigger := persist.Trigger{
				Batch:     params.PersistBatch,
				Seeding:   params.PersistSeeding,
				Extension: params.PersistExtension,
			}
			if trigger.Extension < 0 {
				trigger.Extension = persist.Any
			}
			persister = persist.NewWriter(params.PersistFile, trigger)
			aligner.SetPersister(persister)
		}

		// ---------------------------------------------------------------
		// alignment

		if outputLog {
			log.Infof("aligning read pairs with %d threads ...", opt.NumCPUs)
		}

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(0,
				mpb.PrependDecorators(
					decor.Name("processed pairs: ", decor.WC{W: len("processed pairs: "), C: decor.DindentRight}),
					decor.CurrentNoUnit("%d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("elapsed: ", decor.WC{W: len("elapsed: ")}),
					decor.Elapsed(decor.ET_STYLE_GO),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
		}

		rdr, err := newPairReader(file1, file2)
		checkError(err)

		total := stats.New()
		reads1, reads2 := &pipeline.ReadBatch{}, &pipeline.ReadBatch{}
		var pairs uint64
		timeStart1 = time.Now()
		for {
			n, err := rdr.Read(reads1, reads2, readBatch)
			checkError(err)
			if n == 0 {
				break
			}

			s, err := aligner.BestApprox(reads1, reads2)
			checkError(errors.Wrapf(err, "batch %d", aligner.Batches()))
			checkError(writer.Err())

			total.Merge(s.Stats)
			if s.Stats.Hits != nil {
				if total.Hits == nil {
					total.Hits = &stats.HitStats{}
				}
				total.Hits.Merge(s.Stats.Hits)
			}

			pairs += uint64(n)
			if verbose {
				bar.IncrBy(n)
			}
		}
		checkError(rdr.Close())

		if verbose {
			bar.SetTotal(-1, true)
			pbs.Wait()
		}

		if persister != nil {
			checkError(persister.Close())
		}

		// ---------------------------------------------------------------
		// summary

		if outputLog {
			secs := time.Since(timeStart1).Seconds()
			log.Infof("processed pairs: %s in %d batch(es), speed: %.3f pairs per second",
				humanize.Comma(int64(pairs)), aligner.Batches(), float64(pairs)/secs)
			if pairs > 0 {
				log.Infof("%.4f%% (%d/%d) pairs aligned", float64(writer.Aligned)/float64(pairs)*100, writer.Aligned, pairs)
			}
			log.Infof("alignment records: %d", writer.Records)
			if writer.Spanning > 0 {
				log.Warningf("%d alignment(s) across reference sequences were skipped", writer.Spanning)
			}
			if persister != nil {
				log.Infof("%d checkpoint dump(s) saved to: %s", persister.Dumps(), params.PersistFile)
			}
			if !isStdin(outFile) {
				log.Infof("alignments saved to: %s", outFile)
			}
		}

		if printStats {
			fmt.Fprintln(os.Stderr)
			checkError(total.Report(os.Stderr))
		}

		if metricsFile != "" {
			checkError(promSink.WriteTextfile(metricsFile))
			if outputLog {
				log.Infof("metrics saved to: %s", metricsFile)
			}
		}

		if plotFile != "" && total.Hits != nil {
			checkError(plotHitStats(total.Hits, plotFile))
			if outputLog {
				log.Infof("seed-hit histogram saved to: %s", plotFile)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(alignCmd)

	// input & output

	alignCmd.Flags().StringP("ref", "r", "",
		formatFlagUsage(`Reference sequence file, or a directory of sequence files.`))

	alignCmd.Flags().StringP("ref-pattern", "", `(?i)\.(f[aq](st[aq])?|fna)(\.gz|\.xz|\.zst|\.bz2)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in the reference directory.`))

	alignCmd.Flags().StringP("read1", "1", "",
		formatFlagUsage(`Read file of mate 1 ("-" for stdin).`))

	alignCmd.Flags().StringP("read2", "2", "",
		formatFlagUsage(`Read file of mate 2 ("-" for stdin).`))

	alignCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	// seeding

	alignCmd.Flags().IntP("seed-len", "k", reference.DefaultOptions.SeedLen,
		formatFlagUsage(fmt.Sprintf(`Seed length, the maximum value is %d.`, reference.MaxSeedLen)))

	alignCmd.Flags().IntP("seed-interval", "", reference.DefaultOptions.SeedInterval,
		formatFlagUsage(`Distance between seeds of the first seeding pass. It is halved in every re-seeding pass.`))

	alignCmd.Flags().IntP("max-reseed", "", int(pipeline.DefaultParams.MaxReseed),
		formatFlagUsage(`Maximum number of re-seeding passes.`))

	alignCmd.Flags().BoolP("top-seed", "", false,
		formatFlagUsage(`Only extend hits of the seed with the fewest hits.`))

	// extension

	alignCmd.Flags().IntP("max-dist", "m", int(pipeline.DefaultParams.MaxDist),
		formatFlagUsage(`Maximum edit distance of an alignment, which also decides the DP band width.`))

	alignCmd.Flags().IntP("max-ext", "e", int(pipeline.DefaultParams.MaxExt),
		formatFlagUsage(`Maximum number of extensions per read.`))

	alignCmd.Flags().IntP("max-trys", "", int(pipeline.DefaultParams.MaxTrys),
		formatFlagUsage(`Maximum number of consecutive extensions without improvement per read.`))

	alignCmd.Flags().IntP("batch-size", "", int(pipeline.DefaultParams.BatchSize),
		formatFlagUsage(`Maximum number of extensions of one round.`))

	alignCmd.Flags().IntP("read-batch", "b", 100000,
		formatFlagUsage(`Number of read pairs of a batch.`))

	// pairing

	alignCmd.Flags().IntP("min-insert", "I", int(pipeline.DefaultParams.MinInsert),
		formatFlagUsage(`Minimum insert size of a concordant pair.`))

	alignCmd.Flags().IntP("max-insert", "X", int(pipeline.DefaultParams.MaxInsert),
		formatFlagUsage(`Maximum insert size of a concordant pair.`))

	// statistics & debugging

	alignCmd.Flags().BoolP("stats", "", false,
		formatFlagUsage(`Print the time and throughput of every stage.`))

	alignCmd.Flags().BoolP("keep-stats", "", false,
		formatFlagUsage(`Collect statistics of seed hits of the first seeding pass.`))

	alignCmd.Flags().StringP("hits-plot", "", "",
		formatFlagUsage(`Plot histograms of seed hits per read to a file (.png, .pdf or .svg). It needs --keep-stats.`))

	alignCmd.Flags().StringP("metrics-file", "", "",
		formatFlagUsage(`Write stage statistics in the Prometheus text format to a file.`))

	alignCmd.Flags().IntP("persist-batch", "", -1,
		formatFlagUsage(`Dump intermediate arrays of this batch (0-based), -1 for none.`))

	alignCmd.Flags().IntP("persist-seeding", "", -1,
		formatFlagUsage(`Dump intermediate arrays of this seeding pass (0-based).`))

	alignCmd.Flags().IntP("persist-extension", "", -1,
		formatFlagUsage(`Dump intermediate arrays of this extension round (0-based), -1 for all rounds.`))

	alignCmd.Flags().StringP("persist-file", "", "",
		formatFlagUsage(`File of the dumps, supports the ".gz" suffix.`))

	alignCmd.SetUsageTemplate(usageTemplate("-r <ref> -1 <read1> -2 <read2> [-o out.tsv.gz]"))
}
