package control

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// ErrUnsupportedFormat is returned by ExportRunData for any format name
// other than "JSON" or "CSV" (case-insensitive).
var ErrUnsupportedFormat = errors.New("unsupported export format")

type exportPayload struct {
	Events  []types.SimulationEvent `json:"events"`
	Metrics types.MetricsSnapshot   `json:"metrics"`
}

func exportRunData(events []types.SimulationEvent, metrics types.MetricsSnapshot, format string) ([]byte, error) {
	switch strings.ToUpper(format) {
	case "JSON":
		return json.Marshal(exportPayload{Events: events, Metrics: metrics})
	case "CSV":
		return exportCSV(events, metrics)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func exportCSV(events []types.SimulationEvent, metrics types.MetricsSnapshot) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("=== EVENTS ===\n")
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "type", "nodeId", "peerId", "payloadSummary"}); err != nil {
		return nil, err
	}
	for _, evt := range events {
		peer := ""
		if p, ok := evt.Peer(); ok {
			peer = string(p)
		}
		row := []string{
			evt.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
			string(evt.Type),
			string(evt.NodeId),
			peer,
			evt.PayloadSummary,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	buf.WriteString("=== METRICS ===\n")
	mw := csv.NewWriter(&buf)
	if err := mw.Write([]string{"simulatedTime", "realTimeMillis", "messageCount", "rounds", "converged", "leaderId"}); err != nil {
		return nil, err
	}
	leaderId := ""
	if metrics.LeaderId != nil {
		leaderId = string(*metrics.LeaderId)
	}
	metricsRow := []string{
		strconv.FormatInt(metrics.SimulatedTime, 10),
		strconv.FormatInt(metrics.RealTimeMillis, 10),
		strconv.FormatInt(metrics.MessageCount, 10),
		strconv.FormatInt(metrics.Rounds, 10),
		strconv.FormatBool(metrics.Converged),
		leaderId,
	}
	if err := mw.Write(metricsRow); err != nil {
		return nil, err
	}
	mw.Flush()
	if err := mw.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
