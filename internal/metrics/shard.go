package metrics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/types"
)

// shardColumns is the current raw log line width: ts_us,latency_ns,status,
// outcome_class,response_bytes,in_flight_at_start.
const shardColumns = 6

// ShardWriter appends RequestOutcome rows to one shard's raw log file. Each
// worker is assigned a shard, so a shard's writer is
// only ever touched by the workers hashed onto it, but Write is still safe
// for concurrent callers since shard assignment can share a shard across
// several workers.
type ShardWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewShardWriter opens (creating or appending to) the raw log file at path.
func NewShardWriter(path string) (*ShardWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.New("metrics.NewShardWriter", errs.LogIo, path, err)
	}
	return &ShardWriter{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the shard's log file path.
func (s *ShardWriter) Path() string { return s.path }

// Write appends one outcome as a CSV row. Failures are reported but never
// fatal to the run.
func (s *ShardWriter) Write(o types.RequestOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%d,%d,%d,%s,%d,%d\n",
		o.TimestampUs, o.LatencyNs, o.Status, o.Class.String(), o.ResponseBytes, o.InFlightAtStart)
	if err != nil {
		return errs.New("ShardWriter.Write", errs.LogIo, s.path, err)
	}
	return nil
}

// Flush forces buffered rows to the underlying file.
func (s *ShardWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return errs.New("ShardWriter.Flush", errs.LogIo, s.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *ShardWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return errs.New("ShardWriter.Close", errs.LogIo, s.path, err)
	}
	if err := s.f.Close(); err != nil {
		return errs.New("ShardWriter.Close", errs.LogIo, s.path, err)
	}
	return nil
}

// ReadShard parses one raw log file back into outcomes, used by the replay
// engine. Rows with 4 or 5 columns are from older log formats (missing
// response_bytes and/or in_flight_at_start) and have the missing trailing
// columns default to zero rather than failing the read.
func ReadShard(r io.Reader) ([]types.RequestOutcome, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []types.RequestOutcome
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		o, err := parseShardLine(line)
		if err != nil {
			continue
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return out, errs.New("ReadShard", errs.LogIo, "", err)
	}
	return out, nil
}

func parseShardLine(line string) (types.RequestOutcome, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return types.RequestOutcome{}, fmt.Errorf("metrics: malformed shard line %q", line)
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return types.RequestOutcome{}, err
	}
	lat, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return types.RequestOutcome{}, err
	}
	status, err := strconv.Atoi(fields[2])
	if err != nil {
		return types.RequestOutcome{}, err
	}
	class := types.ParseOutcomeClass(fields[3])

	var respBytes int64
	if len(fields) > 4 {
		respBytes, _ = strconv.ParseInt(fields[4], 10, 64)
	}
	var inFlight int
	if len(fields) > 5 {
		inFlight, _ = strconv.Atoi(fields[5])
	}

	return types.RequestOutcome{
		TimestampUs:     ts,
		LatencyNs:       lat,
		Status:          status,
		Class:           class,
		ResponseBytes:   respBytes,
		InFlightAtStart: inFlight,
	}, nil
}
