package client

import (
	"fmt"
	"io"
	"text/tabwriter"

	"dbrouter/pkg/models"

	"github.com/dustin/go-humanize"
)

// WriteStatus prints status as an aligned table.
func WriteStatus(out io.Writer, status *models.RouterStatus) error {
	mode := "single"
	if status.MultiBackend {
		mode = "multi"
	}
	if _, err := fmt.Fprintf(out, "mode: %s  active: %d  limit: %s  warn: %s\n\n",
		mode, status.ActiveIndex, humanize.IBytes(uint64(status.LimitBytes)), humanize.IBytes(uint64(status.WarnBytes))); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tACTIVE\tAVAILABLE\tCONNECTED\tSIZE\tUSED\tURL")
	for _, backend := range status.Backends {
		active := ""
		if backend.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%t\t%s\t%s\t%s\n",
			backend.Index, active, backend.Available, backend.Connected,
			formatSize(backend.SizeBytes), usage(backend.SizeBytes, status.LimitBytes), backend.URL)
	}
	return tw.Flush()
}

func formatSize(size int64) string {
	if size < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(size))
}

func usage(size, limit int64) string {
	if size < 0 || limit <= 0 {
		return "-"
	}
	return humanize.FtoaWithDigits(float64(size)*100/float64(limit), 1) + "%"
}
