package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ledrig-monitor/internal/history"
	"github.com/sweeney/ledrig-monitor/internal/logic"
	"github.com/sweeney/ledrig-monitor/internal/status"
)

// historyRows caps how many entries the page shows, newest first.
const historyRows = 20

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>LED Rig Monitor</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.up, .connected { color: green; }
.down, .disconnected, .fault { color: red; }
.pending { color: orange; }
</style>
</head>
<body>
<h1>LED Rig Monitor</h1>

<h2>Rig</h2>
<table>
<tr><th>Liveness</th><td id="liveness" class="{{if not .Polled}}pending{{else if eq (printf "%s" .Liveness) "UP"}}up{{else}}down{{end}}">{{if .Polled}}{{.Liveness}}{{else}}WAITING{{end}}</td></tr>
<tr><th>Last poll</th><td>{{stamp .LastPoll}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td class="fault">{{.LastError}}</td></tr>{{end}}
<tr><th>Fault mode</th><td>{{orDash .FaultMode}}</td></tr>
<tr><th>Operation mode</th><td>{{orDash (printf "%s" .OperationMode)}}</td></tr>
</table>

<h2>Active Faults</h2>
{{if .Faults}}<table>
{{range .Faults}}<tr><th class="fault">{{.Name}}</th><td>{{.Description}} ({{.Category}})</td></tr>
{{end}}</table>{{else}}<p>None</p>{{end}}

<h2>LEDs</h2>
<table>
{{range .Channels}}<tr><th>{{.Name}}</th><td class="{{if .On}}on{{else}}off{{end}}">{{if .On}}ON{{else}}OFF{{end}}{{if ge .Duty 0}} ({{.Duty}}%){{end}}</td></tr>
{{end}}</table>

<h2>Fault History</h2>
<table>
<tr><th>Entries</th><td>{{.History.Count}}{{if .History.Degraded}} <span class="fault">(not persisted)</span>{{end}}</td></tr>
{{range .Recent}}<tr><th>{{stamp .OccurredAt}}</th><td>{{.Name}}: {{.Description}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orDash .Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Rig</th><td>{{.Config.DeviceURL}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Skipped polls</th><td>{{.Suppressed}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>History backend</th><td>{{.Config.HistoryBackend}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/history">History</a></p>
</body>
</html>
`

type channelRow struct {
	Name string
	On   bool
	Duty int // -1 when the rig reports no duty cycle
}

func renderHTML(w io.Writer, snap status.Snapshot, entries []history.Entry) {
	rows := make([]channelRow, 0, len(logic.Channels))
	for _, c := range logic.Channels {
		row := channelRow{Name: c, On: snap.LEDs[c], Duty: -1}
		if snap.Device != nil {
			if d, ok := snap.Device.DutyCycles[c]; ok {
				row.Duty = d
			}
		}
		rows = append(rows, row)
	}

	recent := make([]history.Entry, 0, historyRows)
	for i := len(entries) - 1; i >= 0 && len(recent) < historyRows; i-- {
		recent = append(recent, entries[i])
	}

	// Snapshot has methods but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		FaultMode     string
		OperationMode logic.OperationMode
		Channels      []channelRow
		Recent        []history.Entry
	}{
		Snapshot:      snap,
		Uptime:        snap.Uptime(),
		FaultMode:     snap.FaultMode(),
		OperationMode: snap.OperationMode(),
		Channels:      rows,
		Recent:        recent,
	}
	indexTmpl.Execute(w, data)
}
