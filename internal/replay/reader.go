package replay

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/metrics"
	"github.com/Lythaeon/strest/internal/summary"
	"github.com/Lythaeon/strest/internal/types"
)

// Format identifies a persisted metric log layout.
type Format string

const (
	// FormatRaw is a directory of raw shard log files (or a single shard
	// file) as written by the live metrics pipeline.
	FormatRaw Format = "raw"
	// FormatJSONL is the line-stream export: a run header line followed by
	// one outcome per line. Preferred for incremental parsing.
	FormatJSONL Format = "jsonl"
	// FormatCSV is the outcome CSV export with a header row.
	FormatCSV Format = "csv"
	// FormatJSON is the single-document summary export; it carries encoded
	// histograms but no raw outcomes.
	FormatJSON Format = "json"
)

// DetectFormat guesses the input format from the path: directories are raw
// shard trees, otherwise the extension decides, defaulting to raw.
func DetectFormat(path string) Format {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return FormatRaw
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return FormatJSONL
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	default:
		return FormatRaw
	}
}

// ReadOutcomes loads every outcome persisted at path in the given format,
// sorted by timestamp. FormatJSON inputs carry no raw outcomes; use
// ReadSummary for those.
func ReadOutcomes(path string, format Format) ([]types.RequestOutcome, error) {
	var (
		outcomes []types.RequestOutcome
		err      error
	)
	switch format {
	case FormatRaw:
		outcomes, err = readRaw(path)
	case FormatJSONL:
		outcomes, err = readFileWith(path, ReadJSONL)
	case FormatCSV:
		outcomes, err = readFileWith(path, ReadCSV)
	default:
		return nil, errs.New("replay.ReadOutcomes", errs.ConfigValidation, path,
			errBadFormat(format))
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].TimestampUs < outcomes[j].TimestampUs
	})
	return outcomes, nil
}

// ReadSummary loads a FormatJSON summary export.
func ReadSummary(path string) (*summary.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New("replay.ReadSummary", errs.LogIo, path, err)
	}
	var r summary.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errs.New("replay.ReadSummary", errs.LogIo, path, err)
	}
	return &r, nil
}

// readRaw reads one shard file, or every shard file in a directory.
func readRaw(path string) ([]types.RequestOutcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.New("replay.readRaw", errs.LogIo, path, err)
	}
	if !info.IsDir() {
		return readFileWith(path, func(r io.Reader) ([]types.RequestOutcome, error) {
			return metrics.ReadShard(r)
		})
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errs.New("replay.readRaw", errs.LogIo, path, err)
	}
	var all []types.RequestOutcome
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		part, err := readFileWith(filepath.Join(path, e.Name()), func(r io.Reader) ([]types.RequestOutcome, error) {
			return metrics.ReadShard(r)
		})
		if err != nil {
			continue
		}
		all = append(all, part...)
	}
	return all, nil
}

// ReadJSONL parses the JSONL export line stream: the run header line is
// skipped, unknown line types are ignored so the format can grow.
func ReadJSONL(r io.Reader) ([]types.RequestOutcome, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []types.RequestOutcome
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec summary.JSONLOutcome
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != summary.JSONLTypeOutcome {
			continue
		}
		out = append(out, types.RequestOutcome{
			TimestampUs:     rec.TimestampUs,
			LatencyNs:       rec.LatencyNs,
			Status:          rec.Status,
			Class:           types.ParseOutcomeClass(rec.Class),
			ResponseBytes:   rec.ResponseBytes,
			InFlightAtStart: rec.InFlightAtStart,
			StepIndex:       rec.StepIndex,
		})
	}
	if err := sc.Err(); err != nil {
		return out, errs.New("replay.ReadJSONL", errs.LogIo, "", err)
	}
	return out, nil
}

// ReadCSV parses the outcome CSV export; the header row (or any malformed
// row) is skipped. The column layout matches the raw shard format, so the
// shard parser does the work.
func ReadCSV(r io.Reader) ([]types.RequestOutcome, error) {
	return metrics.ReadShard(r)
}

func readFileWith(path string, read func(io.Reader) ([]types.RequestOutcome, error)) ([]types.RequestOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New("replay.read", errs.LogIo, path, err)
	}
	defer f.Close()
	return read(f)
}

type errBadFormat Format

func (e errBadFormat) Error() string { return "unsupported replay format: " + string(e) }
