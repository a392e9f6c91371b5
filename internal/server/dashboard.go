package server

import "github.com/gofiber/fiber/v2"

// handleDashboard serves the live run dashboard
func (s *Server) handleDashboard(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(dashboardHTML)
}

func (s *Server) handleDashboardJS(c *fiber.Ctx) error {
	c.Set("Content-Type", "application/javascript; charset=utf-8")
	return c.SendString(dashboardJS)
}

func (s *Server) handleDashboardCSS(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/css; charset=utf-8")
	return c.SendString(dashboardCSS)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ltesec testbench</title>
    <link rel="stylesheet" href="/dashboard.css">
</head>
<body>
    <header>
        <h1>🛡️ ltesec</h1>
        <span id="run-id" class="muted"></span>
        <nav class="reports">
            <a href="/api/report?format=html" target="_blank">HTML</a>
            <a href="/api/report?format=markdown" target="_blank">Markdown</a>
            <a href="/api/report?format=json" target="_blank">JSON</a>
        </nav>
        <span id="verdict" class="badge pass">PASS</span>
    </header>
    <main>
        <section class="stats">
            <div class="card"><div class="label">Testcases</div><div id="total" class="value">0</div></div>
            <div class="card"><div class="label">Interesting</div><div id="interesting" class="value danger">0</div></div>
            <div class="card"><div class="label">Connected</div><div id="connected" class="value">0</div></div>
            <div class="card"><div class="label">Finished</div><div id="finished" class="value">0</div></div>
            <div class="card"><div class="label">Rejected</div><div id="rejected" class="value">0</div></div>
            <div class="card"><div class="label">Timed out</div><div id="timed_out" class="value">0</div></div>
        </section>
        <section class="panels">
            <div class="panel">
                <h2>Findings</h2>
                <table><tbody id="findings"></tbody></table>
            </div>
            <div class="panel">
                <h2>Events</h2>
                <ul id="events"></ul>
            </div>
        </section>
        <section class="panel wide">
            <h2>Interesting testcases</h2>
            <table>
                <thead><tr><th>ID</th><th>Caps EIA/EEA</th><th>NAS SMC</th><th>RRC SMC</th><th>Flags</th></tr></thead>
                <tbody id="interesting-list"></tbody>
            </table>
        </section>
    </main>
    <script src="/dashboard.js"></script>
</body>
</html>`

const dashboardCSS = `:root {
    --bg-primary: #0a0a0f;
    --bg-secondary: #12121a;
    --bg-tertiary: #1a1a24;
    --text-primary: #e4e4e7;
    --text-muted: #71717a;
    --accent-primary: #00d4ff;
    --accent-success: #10b981;
    --accent-danger: #ef4444;
}
body {
    margin: 0;
    font-family: 'JetBrains Mono', monospace;
    background: var(--bg-primary);
    color: var(--text-primary);
}
header {
    display: flex;
    align-items: center;
    gap: 16px;
    padding: 16px 24px;
    background: var(--bg-secondary);
}
header h1 { margin: 0; font-size: 20px; color: var(--accent-primary); }
main { padding: 24px; }
.muted { color: var(--text-muted); }
.badge { margin-left: auto; padding: 4px 12px; border-radius: 4px; font-weight: 700; }
.badge.pass { background: var(--accent-success); }
.badge.fail { background: var(--accent-danger); }
.stats { display: grid; grid-template-columns: repeat(6, 1fr); gap: 12px; }
.card { background: var(--bg-tertiary); padding: 16px; border-radius: 8px; }
.label { color: var(--text-muted); font-size: 12px; }
.value { font-size: 28px; font-weight: 700; }
.value.danger { color: var(--accent-danger); }
.panels { display: grid; grid-template-columns: 1fr 2fr; gap: 12px; margin-top: 24px; }
.panel { background: var(--bg-secondary); padding: 16px; border-radius: 8px; }
.panel h2 { margin-top: 0; font-size: 14px; }
#events { list-style: none; margin: 0; padding: 0; max-height: 480px; overflow-y: auto; font-size: 12px; }
#events li { padding: 2px 0; border-bottom: 1px solid var(--bg-tertiary); }
td, th { padding: 2px 8px; text-align: left; }
th { color: var(--text-muted); font-weight: 400; }
.reports { margin-left: auto; display: flex; gap: 8px; }
.reports + .badge { margin-left: 0; }
.reports a { color: var(--accent-primary); font-size: 12px; text-decoration: none; }
.wide { margin-top: 12px; }
.flag { color: var(--accent-danger); margin-right: 6px; }`

const dashboardJS = `class Dashboard {
    constructor() {
        this.maxEvents = 200;
        this.connectWebSocket();
        setInterval(() => this.refreshStats(), 2000);
        setInterval(() => this.refreshInteresting(), 5000);
        this.refreshInteresting();
    }

    connectWebSocket() {
        const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
        this.ws = new WebSocket(protocol + '//' + window.location.host + '/ws');
        this.ws.onmessage = (event) => this.handleMessage(JSON.parse(event.data));
        this.ws.onclose = () => setTimeout(() => this.connectWebSocket(), 2000);
    }

    handleMessage(message) {
        switch (message.type) {
            case 'stats':
                this.updateStats(message.data);
                break;
            case 'event':
                this.addEvent(message.data);
                break;
        }
    }

    async refreshStats() {
        try {
            const response = await fetch('/api/stats');
            this.updateStats(await response.json());
        } catch (e) {
            console.error('stats refresh failed:', e);
        }
    }

    async refreshInteresting() {
        try {
            const response = await fetch('/api/testcases?interesting=true');
            this.renderInteresting(await response.json());
        } catch (e) {
            console.error('testcase refresh failed:', e);
        }
    }

    renderInteresting(entries) {
        const hex = (v) => '0x' + (v || 0).toString(16).padStart(2, '0');
        const smc = (seen, eia, eea) => seen ? 'EIA' + eia + ' / EEA' + eea : '-';
        const rows = entries.map(({snapshot: s, summary}) => {
            const flags = Object.entries(summary)
                .filter(([k, v]) => v === true && k !== 'is_interesting' && k !== 'success')
                .map(([k]) => '<span class="flag">' + k + '</span>');
            return '<tr><td>' + s.id + '</td><td>' + hex(s.eia_caps) + ' / ' + hex(s.eea_caps) + '</td><td>' +
                smc(s.nas_security_mode_command, s.nas_eia, s.nas_eea) + '</td><td>' +
                smc(s.rrc_security_mode_command, s.rrc_eia, s.rrc_eea) + '</td><td>' + flags.join('') + '</td></tr>';
        });
        document.getElementById('interesting-list').innerHTML = rows.join('');
    }

    updateStats(stats) {
        document.getElementById('run-id').textContent = stats.run_id;
        for (const key of ['total', 'interesting', 'connected', 'finished', 'rejected', 'timed_out']) {
            document.getElementById(key).textContent = stats[key];
        }
        const verdict = document.getElementById('verdict');
        verdict.textContent = stats.pass ? 'PASS' : 'FAIL';
        verdict.className = 'badge ' + (stats.pass ? 'pass' : 'fail');

        const rows = Object.entries(stats.findings || {})
            .map(([kind, n]) => '<tr><td>' + kind + '</td><td>' + n + '</td></tr>');
        document.getElementById('findings').innerHTML = rows.join('');
    }

    addEvent(ev) {
        const li = document.createElement('li');
        const parts = ['#' + ev.testcase_id, ev.type];
        if (ev.type === 'start') parts.push('EIA 0x' + (ev.eia_mask || 0).toString(16) + ' EEA 0x' + (ev.eea_mask || 0).toString(16));
        if (ev.type === 'nas_smc' || ev.type === 'rrc_smc') parts.push('EIA' + (ev.eia || 0) + ' / EEA' + (ev.eea || 0));
        if (ev.type === 'attach_reject') parts.push('cause ' + (ev.cause || 0));
        li.textContent = parts.join(' ');
        const list = document.getElementById('events');
        list.prepend(li);
        while (list.children.length > this.maxEvents) list.removeChild(list.lastChild);
    }
}

document.addEventListener('DOMContentLoaded', () => new Dashboard());`
