package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/scoutcache/internal/cache"
)

// Output formats for the stats command.
const (
	outputTable      = "table"
	outputJSON       = "json"
	outputPrometheus = "prometheus"
)

// diskStats describes the cache directory as found on disk.
type diskStats struct {
	Directory    string     `json:"directory"`
	Entries      int        `json:"entries"`
	DiskBytes    int64      `json:"disk_bytes"`
	MaxSizeBytes int64      `json:"max_size_bytes"`
	TTLSeconds   int        `json:"ttl_seconds"`
	Compression  bool       `json:"compression"`
	Expired      int        `json:"expired"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
}

// UsagePercent returns DiskBytes as a percentage of the budget.
func (s diskStats) UsagePercent() float64 {
	if s.MaxSizeBytes <= 0 {
		return 0
	}
	return float64(s.DiskBytes) / float64(s.MaxSizeBytes) * 100
}

// newStatsCmd creates the stats command.
func newStatsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage on disk",
		Example: `  scoutcache stats
  scoutcache stats --output json
  scoutcache stats --output prometheus`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openCache(cmd, false)
			if err != nil {
				return err
			}

			switch strings.ToLower(output) {
			case outputTable:
				stats, statErr := collectDiskStats(c, time.Now())
				if statErr != nil {
					return statErr
				}
				return renderStats(cmd.OutOrStdout(), stats)
			case outputJSON:
				stats, statErr := collectDiskStats(c, time.Now())
				if statErr != nil {
					return statErr
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			case outputPrometheus:
				return writePrometheus(cmd.OutOrStdout(), c)
			default:
				return fmt.Errorf("unknown output format %q (want %s, %s or %s)",
					output, outputTable, outputJSON, outputPrometheus)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table, json or prometheus")
	return cmd
}

// collectDiskStats scans the store once, reading entry headers only.
// Entries with a bad header are counted but contribute no timestamps.
func collectDiskStats(c *cache.Cache, now time.Time) (diskStats, error) {
	cfg := c.Config()
	stats := diskStats{
		Directory:    cfg.Directory,
		MaxSizeBytes: cfg.MaxSizeBytes,
		TTLSeconds:   cfg.TTLSeconds,
		Compression:  cfg.Compression,
	}

	store := c.Store()
	for info, err := range store.Entries() {
		if err != nil {
			return stats, err
		}
		stats.Entries++
		stats.DiskBytes += info.Size

		storedAt, readErr := store.ReadStoredAt(info.Key)
		if readErr != nil {
			continue
		}
		entry := cache.Entry{StoredAt: storedAt}
		if entry.IsExpired(now, cfg.TTLSeconds) {
			stats.Expired++
		}
		stored := entry.StoredTime()
		if stats.Oldest == nil || stored.Before(*stats.Oldest) {
			stats.Oldest = &stored
		}
		if stats.Newest == nil || stored.After(*stats.Newest) {
			stats.Newest = &stored
		}
	}
	return stats, nil
}

// renderStats writes a styled box on terminals and plain lines elsewhere.
func renderStats(w io.Writer, stats diskStats) error {
	lines := statsLines(stats)

	if f, ok := w.(*os.File); ok && isTerminal(f) {
		titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
		boxStyle := lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

		var content strings.Builder
		content.WriteString(titleStyle.Render("CACHE STATS"))
		for _, l := range lines {
			content.WriteString("\n")
			content.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", l[0])))
			content.WriteString(" ")
			content.WriteString(l[1])
		}
		_, err := fmt.Fprintln(w, boxStyle.Render(content.String()))
		return err
	}

	if _, err := fmt.Fprintln(w, "CACHE STATS"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "==========="); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-12s %s\n", l[0]+":", l[1]); err != nil {
			return err
		}
	}
	return nil
}

func statsLines(stats diskStats) [][2]string {
	p := message.NewPrinter(language.English)

	compression := "off"
	if stats.Compression {
		compression = "gzip"
	}

	lines := [][2]string{
		{"Directory", stats.Directory},
		{"Entries", p.Sprintf("%d (%d expired)", stats.Entries, stats.Expired)},
		{"Size", p.Sprintf("%s of %s (%.1f%%)",
			humanize.IBytes(uint64(max(stats.DiskBytes, 0))),
			humanize.IBytes(uint64(max(stats.MaxSizeBytes, 0))),
			stats.UsagePercent())},
		{"TTL", cache.FormatDuration(time.Duration(stats.TTLSeconds) * time.Second)},
		{"Compression", compression},
	}
	if stats.Oldest != nil {
		lines = append(lines, [2]string{"Oldest", stats.Oldest.UTC().Format(time.RFC3339)})
	}
	if stats.Newest != nil {
		lines = append(lines, [2]string{"Newest", stats.Newest.UTC().Format(time.RFC3339)})
	}
	return lines
}

// writePrometheus prints the cache metrics in the Prometheus text format.
func writePrometheus(w io.Writer, c *cache.Cache) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(cache.NewCollector(c, cache.DefaultMetricsNamespace)); err != nil {
		return err
	}
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
