package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"reward-farming/internal/farming"
	"reward-farming/internal/fixedpoint"
	"reward-farming/internal/storage"
)

// Export renders a pool's snapshot history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	rt, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Monitor.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snapshots, err := rt.store.ListSnapshotsBetween(ctx, opts.Pool, from, to)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Str("pool", opts.Pool.Hex()).Msg("no snapshots found for export window")
		return nil
	}

	return a.writeSnapshots(snapshots, opts)
}

func (a *App) writeSnapshots(snapshots []storage.PoolSnapshot, opts ExportOptions) error {
	downsampled := downsampleSnapshots(snapshots, opts.MaxPoints)
	a.Logger.Info().Int("total", len(snapshots)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled, a.Config.App.AmountDecimals); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, downsampled, a.Config.App.AmountDecimals); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSnapshots(snapshots []storage.PoolSnapshot, max int) []storage.PoolSnapshot {
	if max <= 0 || len(snapshots) <= max {
		return snapshots
	}
	if max == 1 {
		return snapshots[len(snapshots)-1:]
	}

	result := make([]storage.PoolSnapshot, 0, max)
	step := float64(len(snapshots)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		result = append(result, snapshots[idx])
	}
	return result
}

func slotCount(snapshots []storage.PoolSnapshot) int {
	n := 0
	for _, snap := range snapshots {
		if len(snap.Slots) > n {
			n = len(snap.Slots)
		}
	}
	return n
}

func writeSnapshotsCSV(path string, snapshots []storage.PoolSnapshot, decimals int32) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	slots := slotCount(snapshots)
	header := []string{"taken_at", "total_staked", "user_count", "paused"}
	for i := 0; i < slots; i++ {
		s := farming.Slot(i).String()
		header = append(header,
			"slot_"+s+"_reward_rate",
			"slot_"+s+"_reward_per_token",
			"slot_"+s+"_period_finish",
			"slot_"+s+"_vault_balance",
			"slot_"+s+"_total_funded",
			"slot_"+s+"_total_claimed",
		)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range snapshots {
		record := []string{
			snap.TakenAt.Format(time.RFC3339),
			fixedpoint.Decimal(snap.TotalStaked, decimals).String(),
			strconv.FormatUint(uint64(snap.UserCount), 10),
			strconv.FormatBool(snap.Paused),
		}
		for i := 0; i < slots; i++ {
			if i >= len(snap.Slots) {
				record = append(record, "", "", "", "", "", "")
				continue
			}
			slot := snap.Slots[i]
			record = append(record,
				slotRate(slot, decimals).String(),
				slot.RewardPerToken,
				formatUnix(slot.PeriodFinish),
				fixedpoint.Decimal(slot.VaultBalance, decimals).String(),
				fixedpoint.Decimal(slot.TotalFunded, decimals).String(),
				fixedpoint.Decimal(slot.TotalClaimed, decimals).String(),
			)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSnapshotsPNG(path string, snapshots []storage.PoolSnapshot, decimals int32) error {
	if len(snapshots) < 2 {
		return errors.New("a chart needs at least two snapshots")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	slots := slotCount(snapshots)
	x := make([]time.Time, len(snapshots))
	staked := make([]float64, len(snapshots))
	vaults := make([][]float64, slots)
	rates := make([][]float64, slots)
	for i := range vaults {
		vaults[i] = make([]float64, len(snapshots))
		rates[i] = make([]float64, len(snapshots))
	}

	for i, snap := range snapshots {
		x[i] = snap.TakenAt
		staked[i] = fixedpoint.Decimal(snap.TotalStaked, decimals).InexactFloat64()
		for s := 0; s < slots && s < len(snap.Slots); s++ {
			vaults[s][i] = fixedpoint.Decimal(snap.Slots[s].VaultBalance, decimals).InexactFloat64()
			rates[s][i] = slotRate(snap.Slots[s], decimals).InexactFloat64()
		}
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.6f")
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Total staked",
			XValues: x,
			YValues: staked,
		},
	}
	for s := 0; s < slots; s++ {
		name := farming.Slot(s).String()
		series = append(series,
			chart.TimeSeries{
				Name:    "Vault " + name,
				XValues: x,
				YValues: vaults[s],
			},
			chart.TimeSeries{
				Name:    "Rate " + name + " /s",
				XValues: x,
				YValues: rates[s],
				YAxis:   chart.YAxisSecondary,
			},
		)
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Amount",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Reward rate (/s)",
			ValueFormatter: rateFormatter,
		},
		Series: series,
	}
	if r := flatRange(append([][]float64{staked}, vaults...)...); r != nil {
		graph.YAxis.Range = r
	}
	if r := flatRange(rates...); r != nil {
		graph.YAxisSecondary.Range = r
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// flatRange pads an axis whose values are all equal; go-chart cannot scale a zero-height range.
func flatRange(series ...[]float64) *chart.ContinuousRange {
	min, max := math.Inf(1), math.Inf(-1)
	for _, values := range series {
		for _, v := range values {
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	if math.IsInf(min, 0) || min != max {
		return nil
	}
	pad := math.Abs(min) / 10
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: min - pad, Max: max + pad}
}

// slotRate converts the stored units-per-second rate into display units.
func slotRate(slot storage.SlotSnapshot, decimals int32) decimal.Decimal {
	rate, err := decimal.NewFromString(slot.RewardRate)
	if err != nil {
		return decimal.Zero
	}
	return rate.Shift(-decimals)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
