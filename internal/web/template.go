package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/status"
)

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
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
	"seconds": func(ms uint32) uint32 {
		return ms / 1000
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Soil Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
pre.panel { background: #123; color: #9f9; padding: 8px; line-height: 1.3; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.keys { display: grid; grid-template-columns: repeat(4, 3em); gap: 4px; }
.keys button { font-family: monospace; font-size: 1.2em; height: 2.4em; }
</style>
</head>
<body>
<h1>Soil Controller</h1>

<h2>State</h2>
<table>
<tr><th>Moisture</th><td id="moisture" class="{{if .HasReading}}on{{else}}unknown{{end}}">{{if .HasReading}}{{pct .Moisture}}{{else}}no reading{{end}}</td></tr>
<tr><th>Target</th><td>{{pct .Settings.TargetPct}}</td></tr>
<tr><th>Pump</th><td id="pump" class="{{if .PumpOn}}on{{else}}off{{end}}">{{if .PumpOn}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Screen</th><td>{{.Screen}}</td></tr>
</table>

<pre class="panel">{{range .Display}}{{.}}
{{end}}</pre>
{{if .KeypadEnabled}}
<form class="keys" method="post" action="/keypad">
<input type="hidden" name="redirect" value="1">
{{range .Layout}}{{range .}}<button type="submit" name="key" value="{{.}}">{{.}}</button>{{end}}
{{end}}</form>
{{end}}
<h2>Settings</h2>
<table>
<tr><th>Report every</th><td>{{seconds .Settings.ReportIntervalMs}}s</td></tr>
<tr><th>Dry raw</th><td>{{.Settings.CalibDryRaw}}</td></tr>
<tr><th>Wet raw</th><td>{{.Settings.CalibWetRaw}}</td></tr>
</table>

<h2>Telemetry</h2>
<table>
<tr><th>Collector</th><td>{{.Config.CollectorURL}}</td></tr>
{{with .LastReport}}<tr><th>Last report</th><td class="{{if .OK}}connected{{else}}disconnected{{end}}">{{.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}} {{pct .Moisture}}{{if .Status}} ({{.Status}}){{end}}</td></tr>
{{if .Error}}<tr><th>Error</th><td>{{.Error}}</td></tr>{{end}}{{else}}<tr><th>Last report</th><td>none</td></tr>{{end}}
<tr><th>Reports</th><td>{{.Counts.Reports}} ({{.Counts.ReportFailures}} failed)</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Pump ON</th><td>{{.Counts.PumpOn}}</td></tr>
<tr><th>Pump OFF</th><td>{{.Counts.PumpOff}}</td></tr>
<tr><th>Samples</th><td>{{.Counts.Samples}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SamplePeriodMs}}ms</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopDelayMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Hardware</th><td>sensor={{.Config.Sensor}} keypad={{.Config.Keypad}} pump={{.Config.Pump}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json">History</a> | <a href="/health">Health</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, keypadEnabled bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		KeypadEnabled bool
		Layout        [4][4]logic.Key
	}{
		Snapshot:      snap,
		Uptime:        snap.Uptime(),
		KeypadEnabled: keypadEnabled,
		Layout:        logic.KeypadLayout,
	}
	return indexTmpl.Execute(w, data)
}
