package report

import (
	"context"
	"fmt"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"wanemu/internal/analysis"
)

// greptimeClient is the subset of *greptime.Client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter stores one row per stretch sample. Rows are tagged with
// run, source and node and indexed by the publish time.
type GreptimeWriter struct {
	client greptimeClient
	table  string
}

// NewGreptimeWriter connects to endpoint ("host" or "host:port", gRPC port
// 4001 by default).
func NewGreptimeWriter(endpoint, database, tableName string) (*GreptimeWriter, error) {
	host, port := endpoint, 4001
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeWriter{client: client, table: tableName}, nil
}

func (w *GreptimeWriter) buildTable(rep *analysis.Report) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	for _, err := range []error{
		tbl.AddTagColumn("run_id", types.STRING),
		tbl.AddTagColumn("source", types.INT64),
		tbl.AddTagColumn("node", types.INT64),
		tbl.AddFieldColumn("delay_ms", types.FLOAT64),
		tbl.AddFieldColumn("ping_ms", types.FLOAT64),
		tbl.AddFieldColumn("stretch", types.FLOAT64),
		tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND),
	} {
		if err != nil {
			return nil, err
		}
	}
	for _, s := range rep.Samples {
		err := tbl.AddRow(rep.RunID, int64(rep.Source.Node), int64(s.Node),
			s.DelayMillis, s.PingMillis, s.Stretch, rep.Source.PublishedAt)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// WriteReport implements Writer. A report without samples writes nothing.
func (w *GreptimeWriter) WriteReport(rep *analysis.Report) error {
	if len(rep.Samples) == 0 {
		return nil
	}
	tbl, err := w.buildTable(rep)
	if err != nil {
		return fmt.Errorf("greptime table %s: %w", w.table, err)
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	return nil
}
